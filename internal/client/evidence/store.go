package evidence

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

var allowedExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp"}

// InvalidImageError reports an evidence file the store will not accept.
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid evidence image: %s", e.Reason)
}

// ValidateFilename checks the evidence file carries a supported image extension.
func ValidateFilename(filename string) error {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return &InvalidImageError{Reason: "no file extension"}
	}

	extension := strings.ToLower(filename[idx+1:])
	for _, allowed := range allowedExtensions {
		if extension == allowed {
			return nil
		}
	}

	return &InvalidImageError{Reason: fmt.Sprintf("unsupported file format: %s", extension)}
}

// ProofPath builds the storage path for one proof image. The layout keeps
// uploads grouped by challenge and participant and unique per submission.
func ProofPath(challengeID uint64, participantID string, waypointID int32, now time.Time, filename string) string {
	return fmt.Sprintf("%d/%s/%d_%d_%s", challengeID, participantID, waypointID, now.Unix(), filename)
}

// Store is the evidence image repository interface the state machine depends on.
type Store interface {
	Save(remotePath string, data io.Reader) error
}

// ftpConn is the subset of the FTP client the store uses.
type ftpConn interface {
	Stor(path string, data io.Reader) error
	Delete(path string) error
	Quit() error
}

// FTPStore keeps proof images on an FTP server. One store is shared by all
// requests, so the lazily dialed control connection and every command on it
// are serialized behind a mutex; an FTP control connection carries only one
// transfer at a time anyway.
type FTPStore struct {
	host     string
	port     string
	user     string
	password string

	mu   sync.Mutex
	conn ftpConn
	dial func() (ftpConn, error)
}

func NewFTPStore(host, port, user, password string) *FTPStore {
	s := &FTPStore{
		host:     host,
		port:     port,
		user:     user,
		password: password,
	}
	s.dial = s.dialServer

	return s
}

func (s *FTPStore) dialServer() (ftpConn, error) {
	addr := s.host + ":" + s.port
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to FTP: %w", err)
	}

	if err := conn.Login(s.user, s.password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("failed to login to FTP: %w", err)
	}

	return conn, nil
}

// connect dials the server once. Callers must hold the mutex.
func (s *FTPStore) connect() error {
	if s.conn != nil {
		return nil
	}

	conn, err := s.dial()
	if err != nil {
		return err
	}

	s.conn = conn
	return nil
}

// Save uploads one evidence image to the FTP server.
func (s *FTPStore) Save(remotePath string, data io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(); err != nil {
		return err
	}

	if err := s.conn.Stor(remotePath, data); err != nil {
		return fmt.Errorf("failed to upload evidence image: %w", err)
	}

	return nil
}

// Delete removes an evidence image from the FTP server.
func (s *FTPStore) Delete(remotePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(); err != nil {
		return err
	}

	if err := s.conn.Delete(remotePath); err != nil {
		return fmt.Errorf("failed to delete evidence image: %w", err)
	}

	return nil
}

// Close quits the FTP session if one was opened.
func (s *FTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.Quit()
	s.conn = nil
	return err
}
