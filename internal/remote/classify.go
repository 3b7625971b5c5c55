package remote

import (
	"strings"
)

// Lines ssh and the session helper print on stderr during normal operation.
var noiseSubstrings = []string{
	"Attempting authentication",
	"Authentication failed, attempt",
}

const hostKeyAddedPrefix = "Warning: Permanently added"

// Classify turns captured session output into a result. Non-empty stdout is
// returned as-is (trimmed) regardless of stderr, because remote tools often
// warn on stderr while succeeding. With empty stdout, stderr is matched
// case-insensitively against known connection and authentication failures,
// then against a generic error:/fatal: pattern. Anything else is a
// successful empty result.
func Classify(stdout, stderr string) (string, error) {
	if out := strings.TrimSpace(stdout); out != "" {
		return out, nil
	}

	lines := significantLines(stderr)
	if len(lines) == 0 {
		return "", nil
	}
	text := strings.ToLower(strings.Join(lines, "\n"))

	switch {
	case strings.Contains(text, "connection closed"):
		return "", connectionError("Connection closed", nil)
	case strings.Contains(text, "timed out"):
		return "", connectionError("Connection timed out", nil)
	case strings.Contains(text, "connection refused"):
		return "", connectionError("Connection refused", nil)
	case strings.Contains(text, "permission denied"):
		return "", authError("Permission denied", nil)
	case strings.Contains(text, "too many authentication failures"):
		return "", authError("Max authentication attempts reached", nil)
	case strings.Contains(text, "account is locked"):
		return "", authError("Account is locked", nil)
	case strings.Contains(text, "error:") || strings.Contains(text, "fatal:"):
		return "", ioError("SSH command failed: "+strings.Join(lines, "\n"), nil)
	}
	return "", nil
}

// significantLines drops blank lines and known noise from stderr.
func significantLines(stderr string) []string {
	var keep []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isNoise(line) {
			continue
		}
		keep = append(keep, line)
	}
	return keep
}

func isNoise(line string) bool {
	if strings.HasPrefix(line, hostKeyAddedPrefix) {
		return true
	}
	for _, s := range noiseSubstrings {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}
