package service

import (
	"math"

	"github.com/ortaieb/scavenger-hunt-game/internal/models"
)

// earthRadiusMeters is the mean Earth radius used by the Haversine formula.
const earthRadiusMeters = 6371000.0

// LocationValidationResult carries the authoritative distance decision for a
// check-in attempt.
type LocationValidationResult struct {
	IsValid           bool    `json:"is_valid"`
	DistanceMeters    float64 `json:"distance_meters"`
	MaxDistanceMeters float64 `json:"max_distance_meters"`
}

// LocationService validates coordinates and computes great-circle distances.
// It holds no storage handle; all operations are pure.
type LocationService struct{}

func NewLocationService() *LocationService {
	return &LocationService{}
}

// ValidateCoordinates checks that a location is within the WGS84 ranges.
func (s *LocationService) ValidateCoordinates(location models.GeoLocation) error {
	if location.Lat < -90.0 || location.Lat > 90.0 {
		return &models.InvalidCoordinatesError{Lat: location.Lat, Lon: location.Lon}
	}
	if location.Lon < -180.0 || location.Lon > 180.0 {
		return &models.InvalidCoordinatesError{Lat: location.Lat, Lon: location.Lon}
	}
	return nil
}

// Distance calculates the great-circle distance in meters between two
// coordinates using the Haversine formula. Both inputs are validated first.
func (s *LocationService) Distance(target, current models.GeoLocation) (float64, error) {
	if err := s.ValidateCoordinates(target); err != nil {
		return 0, err
	}
	if err := s.ValidateCoordinates(current); err != nil {
		return 0, err
	}

	lat1 := target.Lat * math.Pi / 180.0
	lat2 := current.Lat * math.Pi / 180.0
	deltaLat := (current.Lat - target.Lat) * math.Pi / 180.0
	deltaLon := (current.Lon - target.Lon) * math.Pi / 180.0

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c, nil
}

// IsWithinRadius reports whether current lies within radiusMeters of target.
// The boundary is inclusive: a point exactly at the radius is accepted.
func (s *LocationService) IsWithinRadius(target, current models.GeoLocation, radiusMeters float64) (bool, error) {
	distance, err := s.Distance(target, current)
	if err != nil {
		return false, err
	}
	return distance <= radiusMeters, nil
}

// ValidateWaypointLocation checks a reported location against a waypoint's
// target and radius, returning the measured distance either way.
func (s *LocationService) ValidateWaypointLocation(waypoint *models.WaypointDefinition, current models.GeoLocation) (*LocationValidationResult, error) {
	distance, err := s.Distance(waypoint.Location, current)
	if err != nil {
		return nil, err
	}

	return &LocationValidationResult{
		IsValid:           distance <= waypoint.RadiusMeters,
		DistanceMeters:    distance,
		MaxDistanceMeters: waypoint.RadiusMeters,
	}, nil
}

// IsWithinBoundingBox is a fast degree-space pre-check. It may short-circuit
// obviously out-of-range candidates; the Haversine result stays authoritative.
func (s *LocationService) IsWithinBoundingBox(target, current models.GeoLocation, radiusMeters float64) bool {
	// Rough approximation: 1 degree is about 111,320 meters
	degreeTolerance := radiusMeters / 111320.0

	latDiff := math.Abs(current.Lat - target.Lat)
	lonDiff := math.Abs(current.Lon - target.Lon)

	return latDiff <= degreeTolerance && lonDiff <= degreeTolerance
}
