// Package license reports how long a host's plug-in license stays valid.
package license

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/remote"
	"github.com/HerbHall/fleetscope/pkg/models"
)

// DefaultPath is the license file of the priint:comet plug-in.
const DefaultPath = "/Applications/Adobe InDesign CC 2017/Plug-Ins/priint.comet 4.1.6 R R25255/w2_license.lic"

// DateLayout is the expiry format inside license files (YYYY/MM/DD).
const DateLayout = "2006/01/02"

const (
	connTestCommand = "echo 'Connection test'"
	displayDate     = "2006-01-02"
)

// Status strings for checks that produced no date.
const (
	StatusConnectionFailed = "[ERROR] SSH Connection Failed"
	StatusNoExpiration     = "[ERROR] No Expiration Info"
	StatusInvalidDate      = "[ERROR] Invalid Date Format"
)

// Inspector reads license files on remote hosts.
type Inspector struct {
	runner remote.Commander
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithPath overrides the license file location.
func WithPath(path string) Option {
	return func(i *Inspector) {
		if path != "" {
			i.path = path
		}
	}
}

// WithClock sets the source of "today".
func WithClock(now func() time.Time) Option {
	return func(i *Inspector) { i.now = now }
}

// NewInspector creates an Inspector that reads DefaultPath unless overridden.
func NewInspector(runner remote.Commander, logger *zap.Logger, opts ...Option) *Inspector {
	i := &Inspector{runner: runner, path: DefaultPath, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ReadCommand returns the remote command that extracts expiry lines from
// path.
func ReadCommand(path string) string {
	return fmt.Sprintf(`cat %s 2>/dev/null | grep -i "expires"`, shellQuote(path))
}

// Check inspects host. It never fails; every outcome is a displayable
// status, and DebugLog carries the raw remote output.
func (i *Inspector) Check(ctx context.Context, host string) models.LicenseStatus {
	log := i.logger.With(zap.String("host", host))
	log.Info("checking license")

	if _, err := i.runner.Run(ctx, host, connTestCommand); err != nil {
		log.Warn("license check connection failed", zap.Error(err))
		return models.LicenseStatus{
			Host:     host,
			Status:   StatusConnectionFailed,
			Error:    "SSH connection error: " + err.Error(),
			DebugLog: fmt.Sprintf("SSH connection failed to %s\nError: %v", host, err),
			Band:     models.LicenseError,
		}
	}

	out, err := i.runner.Run(ctx, host, ReadCommand(i.path))
	if err != nil {
		log.Warn("license read failed", zap.Error(err))
		return models.LicenseStatus{
			Host:     host,
			Status:   StatusNoExpiration,
			Error:    "license read failed: " + err.Error(),
			DebugLog: fmt.Sprintf("read %s on %s\nError: %v", i.path, host, err),
			Band:     models.LicenseError,
		}
	}
	if strings.TrimSpace(out) == "" {
		log.Warn("no expiration line in license file", zap.String("path", i.path))
		return models.LicenseStatus{
			Host:     host,
			Status:   StatusNoExpiration,
			Error:    "no expiration line found in " + i.path,
			DebugLog: out,
			Band:     models.LicenseError,
		}
	}

	expiry, err := ParseExpiry(out)
	if err != nil {
		log.Warn("unparsable license expiry", zap.Error(err))
		return models.LicenseStatus{
			Host:     host,
			Status:   StatusInvalidDate,
			Error:    err.Error(),
			DebugLog: out,
			Band:     models.LicenseError,
		}
	}

	st := Classify(expiry, i.now())
	st.Host = host
	st.DebugLog = out
	log.Info("license checked", zap.String("band", string(st.Band)), zap.Int("days", st.Days))
	return st
}

// SoftwareInfo collects every license check for host.
func (i *Inspector) SoftwareInfo(ctx context.Context, host string) models.SoftwareInfo {
	return models.SoftwareInfo{CometLicenseExpiry: i.Check(ctx, host).Status}
}

// ParseExpiry extracts the date after the first colon of the first line of
// output, ignoring a leading "//" comment marker.
func ParseExpiry(output string) (time.Time, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "//"))

	_, token, ok := strings.Cut(line, ":")
	if !ok {
		return time.Time{}, fmt.Errorf("no date in license line %q", line)
	}
	token = strings.TrimSpace(token)
	if f := strings.Fields(token); len(f) > 0 {
		token = f[0]
	}
	t, err := time.Parse(DateLayout, token)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry date %q: %w", token, err)
	}
	return t, nil
}

// Classify bands an expiry date against today. Both are compared as
// calendar dates. Once a license has lapsed, overdue days are counted from
// the expiry date through today inclusive, so a license that expired on
// 2023-11-01 is 31 days overdue on 2023-12-01. Days is negative by the same
// count.
func Classify(expiry, today time.Time) models.LicenseStatus {
	days := daysBetween(today, expiry)
	date := expiry.Format(displayDate)

	st := models.LicenseStatus{Expires: date, Days: days}
	switch {
	case days < 0:
		overdue := -days + 1
		st.Days = -overdue
		st.Band = models.LicenseExpired
		st.Status = fmt.Sprintf("[EXPIRED] %s (%d days overdue) [Countdown: %d days overdue]", date, overdue, overdue)
	case days <= 30:
		st.Band = models.LicenseWarning
		st.Status = fmt.Sprintf("[WARNING] Expires %s [Countdown: %d days remaining]", date, days)
	case days <= 90:
		st.Band = models.LicenseNotice
		st.Status = fmt.Sprintf("[NOTICE] Expires %s [Countdown: %d days remaining]", date, days)
	default:
		st.Band = models.LicenseOK
		st.Status = fmt.Sprintf("[OK] Valid until %s [Countdown: %d days remaining]", date, days)
	}
	return st
}

func daysBetween(from, to time.Time) int {
	civil := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return int(civil(to).Sub(civil(from)).Hours() / 24)
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
