package mail

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var subdirs = []string{"tmp", "new", "cur"}

type Maildir struct {
	path     string
	hostname string
	pid      int
}

// OpenMaildir creates the maildir at path when missing and checks that
// messages can be written into it.
func OpenMaildir(path string) (*Maildir, error) {
	for _, dir := range append([]string{""}, subdirs...) {
		fullPath := filepath.Join(path, dir)
		if err := os.MkdirAll(fullPath, 0o700); err != nil {
			return nil, fmt.Errorf("failed to access %q: %w", fullPath, err)
		}
	}

	probe, err := os.CreateTemp(filepath.Join(path, "tmp"), ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("failed to access %q: %w", path, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}

	return &Maildir{path: path, hostname: hostname, pid: os.Getpid()}, nil
}

func (m *Maildir) Path() string {
	return m.path
}

// Deliver writes message into tmp/ and moves it into new/. It returns the
// path of the delivered file.
func (m *Maildir) Deliver(message []byte) (string, error) {
	name := fmt.Sprintf("%d.%s_%d.%s", time.Now().Unix(), uuid.NewString(), m.pid, m.hostname)
	tmpPath := filepath.Join(m.path, "tmp", name)
	newPath := filepath.Join(m.path, "new", name)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create message file: %w", err)
	}

	if _, err := f.Write(message); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write message: %w", err)
	}

	if err := os.Rename(tmpPath, newPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to deliver message: %w", err)
	}
	return newPath, nil
}
