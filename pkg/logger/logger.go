package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus logger
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new logger instance
func NewLogger(serviceName string) *Logger {
	log := logrus.New()

	// Set JSON formatter
	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	// Set log level from environment
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	log = log.WithField("service", serviceName).Logger

	return &Logger{Logger: log}
}

// WithChallengeID adds a challenge ID to the log entry
func (l *Logger) WithChallengeID(challengeID uint64) *logrus.Entry {
	return l.WithField("challenge_id", challengeID)
}

// WithParticipantID adds a participant ID to the log entry
func (l *Logger) WithParticipantID(participantID string) *logrus.Entry {
	return l.WithField("participant_id", participantID)
}

// WithWaypointID adds a waypoint ID to the log entry
func (l *Logger) WithWaypointID(waypointID int32) *logrus.Entry {
	return l.WithField("waypoint_id", waypointID)
}
