package recon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DNSSDConfig tunes the dns-sd browse scanner.
type DNSSDConfig struct {
	Service  string
	MaxLines int
	Timeout  time.Duration
	// Command overrides the browse invocation; the default is
	// dns-sd -B <Service> .
	Command []string
}

// DNSSDScanner browses for a service with the dns-sd tool and parses its
// line-oriented event stream. dns-sd never exits on its own, so every scan
// kills it.
type DNSSDScanner struct {
	command  []string
	maxLines int
	timeout  time.Duration
	logger   *zap.Logger
}

// Compile-time interface guard.
var _ Scanner = (*DNSSDScanner)(nil)

// NewDNSSDScanner creates a dns-sd scanner. Zero config values fall back to
// browsing _ssh._tcp for at most 100 lines or 15 seconds.
func NewDNSSDScanner(cfg DNSSDConfig, logger *zap.Logger) *DNSSDScanner {
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"dns-sd", "-B", cfg.Service, "."}
	}
	return &DNSSDScanner{
		command:  cfg.Command,
		maxLines: cfg.MaxLines,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Scan runs one browse until the line cap, the deadline or the end of the
// stream, emitting every added host.
func (s *DNSSDScanner) Scan(ctx context.Context, out chan<- string) error {
	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(scanCtx, s.command[0], s.command[1:]...) //nolint:gosec // browse command comes from config
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture dns-sd output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start dns-sd: %w", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()
	// Unblock the reader at the deadline even if a grandchild still holds
	// the pipe open.
	stop := context.AfterFunc(scanCtx, func() { _ = stdout.Close() })
	defer stop()

	var (
		parser  browseParser
		lines   int
		found   int
		scanner = bufio.NewScanner(stdout)
	)
	for scanner.Scan() {
		if lines >= s.maxLines {
			s.logger.Warn("dns-sd scan reached line limit", zap.Int("max_lines", s.maxLines))
			break
		}
		lines++

		host, ok := parser.feed(scanner.Text())
		if !ok {
			continue
		}
		found++
		s.logger.Info("found host", zap.String("host", host))
		emit(ctx, out, host, s.logger)
	}
	parser.finish()

	if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("dns-sd scan timed out",
			zap.Duration("timeout", s.timeout),
			zap.Int("lines", lines),
		)
	}

	if found == 0 {
		return ErrNoHosts
	}
	return nil
}

type browseState int

const (
	stateAwaitingHeader browseState = iota
	stateDiscovering
	stateDone
)

func (s browseState) String() string {
	switch s {
	case stateAwaitingHeader:
		return "awaiting_header"
	case stateDiscovering:
		return "discovering"
	default:
		return "done"
	}
}

// browseParser turns dns-sd -B output into host names. Output before the
// column header is ignored. A browse line looks like:
//
//	12:00:00.123  Add        3   4 local.               _ssh._tcp.           studio-mac
type browseParser struct {
	state browseState
}

const browseHeaderMarker = "Timestamp"

func (p *browseParser) feed(line string) (string, bool) {
	switch p.state {
	case stateAwaitingHeader:
		if strings.Contains(line, browseHeaderMarker) {
			p.state = stateDiscovering
		}
		return "", false
	case stateDiscovering:
		return parseBrowseLine(line)
	default:
		return "", false
	}
}

func (p *browseParser) finish() { p.state = stateDone }

// parseBrowseLine extracts the host from an "Add" event in the local domain.
func parseBrowseLine(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[1] != "Add" || !strings.Contains(line, "local.") {
		return "", false
	}
	host := normalizeHost(fields[len(fields)-1])
	return host, host != ""
}
