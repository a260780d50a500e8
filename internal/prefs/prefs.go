// Package prefs persists the remote's user preferences between runs. The
// store is a dotenv-format file holding a single key.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	KeyServerAddress     = "SERVER_ADDRESS"
	DefaultServerAddress = "localhost:7777"
)

type Store struct {
	path string
}

// DefaultPath is $XDG_CONFIG_HOME/uki/remote.env or the platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "uki", "remote.env"), nil
}

// Open returns a store backed by path, or by DefaultPath when path is empty.
// The file is not touched until the first read or write.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locate preferences: %w", err)
		}
		path = p
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// ServerAddress returns the stored address, or DefaultServerAddress when the
// file or key is missing.
func (s *Store) ServerAddress() (string, error) {
	values, err := godotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultServerAddress, nil
	}
	if err != nil {
		return DefaultServerAddress, fmt.Errorf("read %s: %w", s.path, err)
	}
	if addr := strings.TrimSpace(values[KeyServerAddress]); addr != "" {
		return addr, nil
	}
	return DefaultServerAddress, nil
}

func (s *Store) SetServerAddress(addr string) error {
	values, err := godotenv.Read(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		values = map[string]string{}
	}
	values[KeyServerAddress] = strings.TrimSpace(addr)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	if err := godotenv.Write(values, s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
