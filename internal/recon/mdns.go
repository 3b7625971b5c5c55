//go:build !windows

package recon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// MDNSScanner discovers hosts by querying multicast DNS directly, without
// the dns-sd tool.
type MDNSScanner struct {
	service string
	timeout time.Duration
	logger  *zap.Logger
}

// Compile-time interface guard.
var _ Scanner = (*MDNSScanner)(nil)

// NewMDNSScanner creates an mDNS scanner for service. A zero timeout
// listens for responses for 3 seconds.
func NewMDNSScanner(service string, timeout time.Duration, logger *zap.Logger) *MDNSScanner {
	if service == "" {
		service = DefaultService
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MDNSScanner{service: service, timeout: timeout, logger: logger}
}

// Scan sends one query and emits each distinct responding host.
func (s *MDNSScanner) Scan(ctx context.Context, out chan<- string) error {
	entries := make(chan *mdns.ServiceEntry, 16)

	var found int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		seen := make(map[string]struct{})
		for entry := range entries {
			host := hostFromEntry(entry, s.service)
			if host == "" {
				continue
			}
			if _, dup := seen[host]; dup {
				continue
			}
			seen[host] = struct{}{}
			found++
			s.logger.Info("found host",
				zap.String("host", host),
				zap.String("service", s.service),
			)
			emit(ctx, out, host, s.logger)
		}
	}()

	params := mdns.DefaultParams(s.service)
	params.Timeout = s.timeout
	params.Entries = entries
	params.DisableIPv6 = true // Stick to IPv4 for simplicity.

	queryErr := mdns.QueryContext(ctx, params)
	close(entries)
	wg.Wait()

	if found == 0 {
		if queryErr != nil {
			return fmt.Errorf("mdns query %s: %w", s.service, queryErr)
		}
		return ErrNoHosts
	}
	if queryErr != nil {
		s.logger.Debug("mDNS query ended with error",
			zap.String("service", s.service),
			zap.Error(queryErr),
		)
	}
	return nil
}

// hostFromEntry prefers the advertised target host and falls back to the
// instance label of the service name.
func hostFromEntry(entry *mdns.ServiceEntry, service string) string {
	if entry == nil {
		return ""
	}
	if h := normalizeHost(entry.Host); h != "" {
		return h
	}
	instance, _, _ := strings.Cut(entry.Name, "."+service)
	return normalizeHost(instance)
}
