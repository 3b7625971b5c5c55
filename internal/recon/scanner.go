package recon

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// DefaultService is the DNS-SD service type browsed for remotely manageable
// hosts.
const DefaultService = "_ssh._tcp"

const localSuffix = ".local"

// Scanner discovers hosts and streams their names to out as they are seen.
// It returns an error only when the scan ended without finding any host.
type Scanner interface {
	Scan(ctx context.Context, out chan<- string) error
}

var (
	// ErrNoHosts is returned by a single scan that discovered nothing.
	ErrNoHosts = errors.New("no hosts found on network")

	// ErrScanExhausted is returned once every retry attempt has failed.
	ErrScanExhausted = errors.New("discovery scan exhausted")
)

// normalizeHost strips any trailing dot and .local suffix from an advertised
// name and re-appends the canonical ".local". Empty names yield "".
func normalizeHost(name string) string {
	h := strings.TrimSpace(name)
	h = strings.TrimSuffix(h, ".")
	h = strings.TrimSuffix(h, localSuffix)
	if h == "" || h == "local" {
		return ""
	}
	return h + localSuffix
}

// emit delivers host to out unless ctx ends first. A dropped host is logged,
// never fatal to the scan.
func emit(ctx context.Context, out chan<- string, host string, logger *zap.Logger) bool {
	select {
	case out <- host:
		return true
	case <-ctx.Done():
		logger.Warn("dropped discovered host", zap.String("host", host), zap.Error(ctx.Err()))
		return false
	}
}
