package imagecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ortaieb/scavenger-hunt-game/pkg/metrics"
)

var (
	// ErrServiceUnavailable is returned for any non-success transport
	// response from the analysis service. Transient; the caller may retry
	// the whole submit-and-poll cycle with a fresh processing id.
	ErrServiceUnavailable = errors.New("image analysis service unavailable")

	// ErrValidationFailed is returned when the service reports a failed job.
	ErrValidationFailed = errors.New("image validation failed")

	// ErrTimeout is returned when a job does not complete within the
	// attempt budget. Jobs are never resumed.
	ErrTimeout = errors.New("image processing timed out")
)

// InvalidEvidencePathError reports an evidence reference that tries to escape
// the evidence base directory.
type InvalidEvidencePathError struct {
	Path string
}

func (e *InvalidEvidencePathError) Error() string {
	return fmt.Sprintf("invalid evidence path: %s", e.Path)
}

// UnexpectedResponseError reports an unknown status string from the service.
type UnexpectedResponseError struct {
	Status string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected analysis status: %s", e.Status)
}

// LocationConstraint asks the analysis service to confirm the photo was taken
// near a coordinate.
type LocationConstraint struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"long"`
	MaxDistance float64 `json:"max_distance"`
}

// TimeConstraint asks the analysis service to confirm the photo was taken
// within a window starting at Start and lasting DurationMinutes.
type TimeConstraint struct {
	Start           time.Time `json:"start"`
	DurationMinutes int64     `json:"duration"`
}

// NewTimeConstraint builds a window of the given minutes around now, allowing
// the same slack into the past and the future.
func NewTimeConstraint(now time.Time, durationMinutes int64) TimeConstraint {
	return TimeConstraint{
		Start:           now.Add(-time.Duration(durationMinutes) * time.Minute),
		DurationMinutes: durationMinutes * 2,
	}
}

type validationRequest struct {
	ProcessingID    string          `json:"processing-id"`
	ImagePath       string          `json:"image-path"`
	AnalysisRequest analysisRequest `json:"analysis-request"`
}

type analysisRequest struct {
	Content  string              `json:"content"`
	Location *LocationConstraint `json:"location,omitempty"`
	Datetime *TimeConstraint     `json:"datetime,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Result is the final verdict of one verification job.
type Result struct {
	Resolution string   `json:"resolution"` // "accepted" or "rejected"
	Reasons    []string `json:"reasons,omitempty"`
}

// Accepted reports whether the service accepted the evidence.
func (r *Result) Accepted() bool {
	return r.Resolution == "accepted"
}

// Client talks to the external image analysis service. Each verification call
// is stateless beyond its processing id, so concurrent jobs need no shared
// mutable state.
type Client struct {
	baseURL      string
	evidenceBase string
	httpClient   *http.Client
	baseDelay    time.Duration
	stepDelay    time.Duration
	maxAttempts  int
	metrics      *metrics.Metrics
}

// New creates an analysis service client. evidenceBase is the storage root
// the externally visible image references are resolved against.
func New(baseURL, evidenceBase string, m *metrics.Metrics) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		evidenceBase: evidenceBase,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseDelay:    time.Second,
		stepDelay:    100 * time.Millisecond,
		maxAttempts:  30,
		metrics:      m,
	}
}

// Verify runs one full verification job: submit, poll to completion, fetch
// the result. A non-nil error means no verdict was reached.
func (c *Client) Verify(ctx context.Context, evidencePath, expectedSubject string, location *LocationConstraint, window *TimeConstraint) (*Result, error) {
	processingID := uuid.New().String()

	imagePath, err := c.buildEvidenceReference(evidencePath)
	if err != nil {
		return nil, err
	}

	req := validationRequest{
		ProcessingID: processingID,
		ImagePath:    imagePath,
		AnalysisRequest: analysisRequest{
			Content:  expectedSubject,
			Location: location,
			Datetime: window,
		},
	}

	if err := c.submit(ctx, &req); err != nil {
		return nil, err
	}

	if err := c.awaitCompletion(ctx, processingID); err != nil {
		return nil, err
	}

	return c.fetchResult(ctx, processingID)
}

// submit sends the validation request to the analysis service.
func (c *Client) submit(ctx context.Context, req *validationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode validation request: %w", err)
	}

	url := fmt.Sprintf("%s/validate", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build validation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrServiceUnavailable
	}

	return nil
}

// awaitCompletion polls the job status with bounded linear backoff. The delay
// grows by one step per attempt on top of the base delay, keeping worst-case
// latency predictable for a fixed attempt budget.
func (c *Client) awaitCompletion(ctx context.Context, processingID string) error {
	attempts := 0

	for {
		status, err := c.checkStatus(ctx, processingID)
		if err != nil {
			return err
		}

		switch status {
		case "completed":
			c.metrics.ObservePollAttempts(attempts)
			return nil
		case "failed":
			c.metrics.ObservePollAttempts(attempts)
			return ErrValidationFailed
		case "in_progress", "accepted":
			attempts++
			if attempts >= c.maxAttempts {
				c.metrics.ObservePollAttempts(attempts)
				return ErrTimeout
			}

			delay := c.baseDelay + time.Duration(attempts)*c.stepDelay
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
		default:
			return &UnexpectedResponseError{Status: status}
		}
	}
}

// checkStatus fetches the current status of a job.
func (c *Client) checkStatus(ctx context.Context, processingID string) (string, error) {
	url := fmt.Sprintf("%s/status/%s", c.baseURL, processingID)
	resp, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("failed to decode status response: %w", err)
	}

	return status.Status, nil
}

// fetchResult fetches the final verdict of a completed job.
func (c *Client) fetchResult(ctx context.Context, processingID string) (*Result, error) {
	url := fmt.Sprintf("%s/results/%s", c.baseURL, processingID)
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result response: %w", err)
	}

	return &result, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, ErrServiceUnavailable
	}

	return resp, nil
}

// buildEvidenceReference resolves a relative evidence path against the
// evidence base. Parent-directory segments and absolute paths are rejected
// before anything leaves the process.
func (c *Client) buildEvidenceReference(relativePath string) (string, error) {
	if strings.HasPrefix(relativePath, "/") {
		return "", &InvalidEvidencePathError{Path: relativePath}
	}
	for _, segment := range strings.Split(relativePath, "/") {
		if segment == ".." {
			return "", &InvalidEvidencePathError{Path: relativePath}
		}
	}

	base := strings.TrimSuffix(c.evidenceBase, "/")
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return fmt.Sprintf("%s/%s", base, relativePath), nil
	}

	return fmt.Sprintf("file://%s/%s", base, relativePath), nil
}

// sleepContext waits for the delay or until the context is cancelled.
func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
