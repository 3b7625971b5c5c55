//go:build windows

package recon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// MDNSScanner is unavailable on Windows where multicast DNS is not reliably
// supported; use the dnssd backend instead.
type MDNSScanner struct{}

// NewMDNSScanner returns a scanner that always fails on Windows.
func NewMDNSScanner(_ string, _ time.Duration, _ *zap.Logger) *MDNSScanner {
	return &MDNSScanner{}
}

// Scan reports that mDNS discovery is unsupported.
func (s *MDNSScanner) Scan(_ context.Context, _ chan<- string) error {
	return errors.New("mdns discovery is not supported on windows")
}
