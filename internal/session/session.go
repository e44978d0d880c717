// Package session gates note-mutating commands behind a PIN. The first PIN
// entered is enrolled as a bcrypt hash; later PINs must match it.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"winecellar/internal/fileutil"
	"winecellar/internal/services"
)

const (
	MinPINLength = 4
	MaxPINLength = 12
)

var (
	// ErrInvalidPIN is returned when a PIN does not match the enrolled hash.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrMalformedPIN is returned for PINs that are not 4-12 digits.
	ErrMalformedPIN = fmt.Errorf("pin must be %d-%d digits: %w", MinPINLength, MaxPINLength, services.ErrValidation)
)

// Session proves a PIN was checked.
type Session struct {
	StartedAt time.Time
	Enrolled  bool
}

// Gate checks PINs against the hash stored at a path.
type Gate struct {
	path string
	cost int
}

// NewGate returns a gate storing its hash at path.
func NewGate(path string) *Gate {
	return &Gate{path: path, cost: bcrypt.DefaultCost}
}

// WithCost returns a copy of the gate hashing with cost. Tests use
// bcrypt.MinCost.
func (g *Gate) WithCost(cost int) *Gate {
	clone := *g
	clone.cost = cost
	return &clone
}

// Enrolled reports whether a PIN hash exists.
func (g *Gate) Enrolled() bool {
	_, err := os.Stat(g.path)
	return err == nil
}

// Authenticate enrolls pin when no hash exists yet, otherwise compares it to
// the stored hash.
func (g *Gate) Authenticate(pin string) (*Session, error) {
	if err := validatePIN(pin); err != nil {
		return nil, err
	}
	stored, err := os.ReadFile(g.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := g.write(pin); err != nil {
			return nil, err
		}
		return &Session{StartedAt: time.Now(), Enrolled: true}, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "read pin hash", g.path, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(string(stored))), []byte(pin)); err != nil {
		return nil, ErrInvalidPIN
	}
	return &Session{StartedAt: time.Now()}, nil
}

// Change replaces the enrolled PIN after verifying the current one.
func (g *Gate) Change(current, next string) error {
	if _, err := g.Authenticate(current); err != nil {
		return err
	}
	if err := validatePIN(next); err != nil {
		return err
	}
	return g.write(next)
}

func (g *Gate) write(pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), g.cost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := fileutil.WriteFileAtomic(g.path, hash, 0o600); err != nil {
		return services.Wrap(services.ErrPersistence, "", "write pin hash", g.path, err)
	}
	return nil
}

func validatePIN(pin string) error {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return ErrMalformedPIN
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return ErrMalformedPIN
		}
	}
	return nil
}

// ReadPIN prompts on out and reads a PIN from in without echo when in is a
// terminal. Non-terminal input is read as one line.
func ReadPIN(in *os.File, out io.Writer, prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(out, prompt)
	}
	if term.IsTerminal(int(in.Fd())) {
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return readLine(in)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read pin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
