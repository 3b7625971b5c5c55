package vault

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// DefaultEnvVar is the environment variable read by EnvSource when no other
// name is configured.
const DefaultEnvVar = "SSH_PASSWORD"

// ErrNoCredential is returned when no credential source has a value. There is
// deliberately no built-in fallback secret.
var ErrNoCredential = errors.New("credential not configured")

// Source supplies the secret used to authenticate remote sessions.
type Source interface {
	Credential() (string, error)
}

// EnvSource reads the credential from an environment variable on every call,
// so rotating the variable takes effect without a restart.
type EnvSource struct {
	name   string
	lookup func(string) (string, bool)
}

// NewEnvSource returns a Source backed by the named environment variable.
// An empty name selects DefaultEnvVar.
func NewEnvSource(name string) *EnvSource {
	if name == "" {
		name = DefaultEnvVar
	}
	return &EnvSource{name: name, lookup: os.LookupEnv}
}

// Name returns the environment variable the source reads.
func (s *EnvSource) Name() string { return s.name }

// Credential returns the variable's value or ErrNoCredential.
func (s *EnvSource) Credential() (string, error) {
	v, ok := s.lookup(s.name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: set %s", ErrNoCredential, s.name)
	}
	return v, nil
}

// StaticSource is a fixed credential, used for per-request secrets and tests.
type StaticSource string

// Credential returns the static value or ErrNoCredential when it is empty.
func (s StaticSource) Credential() (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

// Masked renders a secret for logs: every rune except the last four is
// replaced with '*'. Secrets of four runes or fewer are fully masked.
func Masked(secret string) string {
	n := utf8.RuneCountInString(secret)
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	runes := []rune(secret)
	return strings.Repeat("*", n-4) + string(runes[n-4:])
}
