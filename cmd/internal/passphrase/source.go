// Package passphrase resolves the wallet keystore passphrase for the votesync
// binaries.
package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrUnavailable reports that no passphrase could be obtained without a
// terminal.
var ErrUnavailable = errors.New("keystore passphrase unavailable")

// Source resolves the passphrase once, from an environment variable or an
// interactive prompt, and caches the outcome.
type Source struct {
	envVar string
	prompt io.Writer
	fd     int
	isTTY  func(int) bool
	read   func(int) ([]byte, error)

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on stderr.
func NewSource(envVar string) *Source {
	return &Source{
		envVar: strings.TrimSpace(envVar),
		prompt: os.Stderr,
		fd:     int(os.Stdin.Fd()),
		isTTY:  term.IsTerminal,
		read:   term.ReadPassword,
	}
}

// Func adapts the source to the callback shape the keystore wallet expects.
func (s *Source) Func() func() (string, error) { return s.Get }

// Get returns the passphrase. A variable that is set but blank is an error,
// as is a blank typed passphrase.
func (s *Source) Get() (string, error) {
	s.once.Do(func() { s.value, s.err = s.resolve() })
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTTY(s.fd) {
		if s.envVar != "" {
			return "", fmt.Errorf("%w: set %s or run interactively", ErrUnavailable, s.envVar)
		}
		return "", ErrUnavailable
	}
	fmt.Fprint(s.prompt, "Keystore passphrase: ")
	raw, err := s.read(s.fd)
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	return string(raw), nil
}
