package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
)

// Sink stores an export file and returns where it was written.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Name() string
}

// FileSink writes exports into a local directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Name() string { return "file" }

func (s FileSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// FTPSink uploads exports to an FTP drop directory.
type FTPSink struct {
	Addr     string // host:port
	User     string
	Password string
	Dir      string
	Timeout  time.Duration
}

func (s FTPSink) Name() string { return "ftp" }

func (s FTPSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	conn, err := ftp.Dial(s.Addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := s.User, s.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		return "", fmt.Errorf("ftp login: %w", err)
	}
	if s.Dir != "" {
		if err := conn.ChangeDir(s.Dir); err != nil {
			return "", fmt.Errorf("ftp cwd %s: %w", s.Dir, err)
		}
	}

	base := filepath.Base(name)
	if err := conn.Stor(base, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("ftp stor: %w", err)
	}
	return fmt.Sprintf("ftp://%s/%s", s.Addr, filepath.ToSlash(filepath.Join(s.Dir, base))), nil
}
