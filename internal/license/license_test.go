package license

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/internal/config"
	"github.com/HerbHall/fleetscope/internal/testutil"
	"github.com/HerbHall/fleetscope/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	today := date(2023, 12, 1)
	tests := []struct {
		name   string
		expiry time.Time
		band   models.LicenseBand
		days   int
		status string
	}{
		{
			name:   "notice 31 days",
			expiry: date(2024, 1, 1),
			band:   models.LicenseNotice,
			days:   31,
			status: "[NOTICE] Expires 2024-01-01 [Countdown: 31 days remaining]",
		},
		{
			name:   "expired 31 days",
			expiry: date(2023, 11, 1),
			band:   models.LicenseExpired,
			days:   -31,
			status: "[EXPIRED] 2023-11-01 (31 days overdue) [Countdown: 31 days overdue]",
		},
		{
			name:   "expires today",
			expiry: today,
			band:   models.LicenseWarning,
			days:   0,
			status: "[WARNING] Expires 2023-12-01 [Countdown: 0 days remaining]",
		},
		{
			name:   "warning upper edge",
			expiry: date(2023, 12, 31),
			band:   models.LicenseWarning,
			days:   30,
			status: "[WARNING] Expires 2023-12-31 [Countdown: 30 days remaining]",
		},
		{
			name:   "notice upper edge",
			expiry: date(2024, 2, 29),
			band:   models.LicenseNotice,
			days:   90,
			status: "[NOTICE] Expires 2024-02-29 [Countdown: 90 days remaining]",
		},
		{
			name:   "ok",
			expiry: date(2024, 3, 1),
			band:   models.LicenseOK,
			days:   91,
			status: "[OK] Valid until 2024-03-01 [Countdown: 91 days remaining]",
		},
		{
			name:   "yesterday",
			expiry: date(2023, 11, 30),
			band:   models.LicenseExpired,
			days:   -2,
			status: "[EXPIRED] 2023-11-30 (2 days overdue) [Countdown: 2 days overdue]",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.expiry, today)
			if got.Band != tc.band {
				t.Errorf("Band = %q, want %q", got.Band, tc.band)
			}
			if got.Days != tc.days {
				t.Errorf("Days = %d, want %d", got.Days, tc.days)
			}
			if got.Status != tc.status {
				t.Errorf("Status = %q, want %q", got.Status, tc.status)
			}
		})
	}
}

// Overdue counts are inclusive of the expiry day, so no license is ever
// reported as 1 day overdue: the day after expiry already reads 2.
func TestClassifyOverdueIsInclusive(t *testing.T) {
	expiry := date(2024, 1, 1)
	want := map[int]int{0: 0, 1: -2, 2: -3, 30: -31}
	for after, days := range want {
		got := Classify(expiry, expiry.AddDate(0, 0, after))
		if got.Days != days {
			t.Errorf("%d days after expiry: Days = %d, want %d", after, got.Days, days)
		}
		if got.Days == -1 {
			t.Errorf("%d days after expiry: reported 1 day overdue", after)
		}
	}

	got := Classify(expiry, date(2024, 1, 2))
	if got.Band != models.LicenseExpired {
		t.Errorf("Band = %q, want %q", got.Band, models.LicenseExpired)
	}
	if want := "[EXPIRED] 2024-01-01 (2 days overdue) [Countdown: 2 days overdue]"; got.Status != want {
		t.Errorf("Status = %q, want %q", got.Status, want)
	}
}

func TestClassifyIgnoresTimeOfDay(t *testing.T) {
	today := time.Date(2023, 12, 1, 23, 59, 0, 0, time.UTC)
	got := Classify(date(2024, 1, 1), today)
	if got.Days != 31 || !strings.Contains(got.Status, "31 days remaining") {
		t.Errorf("Classify() = %+v, want 31 days remaining", got)
	}
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    time.Time
		wantErr bool
	}{
		{name: "plain", output: "expires: 2024/01/01", want: date(2024, 1, 1)},
		{name: "comment marker", output: "// Expires: 2025/06/30\n", want: date(2025, 6, 30)},
		{name: "first line wins", output: "Expires: 2024/02/02\nexpires: 2030/01/01", want: date(2024, 2, 2)},
		{name: "trailing text", output: "Expires: 2024/03/04 (perpetual updates)", want: date(2024, 3, 4)},
		{name: "dashed date", output: "Expires: 2024-01-01", wantErr: true},
		{name: "no colon", output: "expires never", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseExpiry(tc.output)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseExpiry(%q) = %v, want error", tc.output, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseExpiry(%q) error = %v", tc.output, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("ParseExpiry(%q) = %v, want %v", tc.output, got, tc.want)
			}
		})
	}
}

func TestReadCommandQuotesPath(t *testing.T) {
	got := ReadCommand("/Apps/it's here/w2.lic")
	want := `cat '/Apps/it'\''s here/w2.lic' 2>/dev/null | grep -i "expires"`
	if got != want {
		t.Errorf("ReadCommand() = %q, want %q", got, want)
	}
}

func newInspector(runner *testutil.FakeRunner) *Inspector {
	clock := testutil.NewClock(date(2023, 12, 1))
	return NewInspector(runner, zap.NewNop(), WithPath("/lic"), WithClock(clock.Now))
}

func TestCheck(t *testing.T) {
	read := ReadCommand("/lic")
	tests := []struct {
		name   string
		runner *testutil.FakeRunner
		status string
		band   models.LicenseBand
		hasErr bool
		debug  string
	}{
		{
			name:   "connection failed",
			runner: testutil.NewFakeRunner().On(connTestCommand, testutil.Response{Err: errors.New("refused")}),
			status: StatusConnectionFailed,
			band:   models.LicenseError,
			hasErr: true,
			debug:  "SSH connection failed to mac.local\nError: refused",
		},
		{
			name: "no expiration",
			runner: testutil.NewFakeRunner().
				On(connTestCommand, testutil.Response{Out: "Connection test"}).
				On(read, testutil.Response{Out: ""}),
			status: StatusNoExpiration,
			band:   models.LicenseError,
			hasErr: true,
		},
		{
			name: "invalid date",
			runner: testutil.NewFakeRunner().
				On(connTestCommand, testutil.Response{Out: "Connection test"}).
				On(read, testutil.Response{Out: "Expires: soon"}),
			status: StatusInvalidDate,
			band:   models.LicenseError,
			hasErr: true,
			debug:  "Expires: soon",
		},
		{
			name: "notice",
			runner: testutil.NewFakeRunner().
				On(connTestCommand, testutil.Response{Out: "Connection test"}).
				On(read, testutil.Response{Out: "// Expires: 2024/01/01"}),
			status: "[NOTICE] Expires 2024-01-01 [Countdown: 31 days remaining]",
			band:   models.LicenseNotice,
			debug:  "// Expires: 2024/01/01",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := newInspector(tc.runner).Check(context.Background(), "mac.local")
			if got.Host != "mac.local" {
				t.Errorf("Host = %q, want mac.local", got.Host)
			}
			if got.Status != tc.status {
				t.Errorf("Status = %q, want %q", got.Status, tc.status)
			}
			if got.Band != tc.band {
				t.Errorf("Band = %q, want %q", got.Band, tc.band)
			}
			if (got.Error != "") != tc.hasErr {
				t.Errorf("Error = %q, want error present = %v", got.Error, tc.hasErr)
			}
			if tc.debug != "" && got.DebugLog != tc.debug {
				t.Errorf("DebugLog = %q, want %q", got.DebugLog, tc.debug)
			}
		})
	}
}

func TestCheckConnTestFailureSkipsRead(t *testing.T) {
	runner := testutil.NewFakeRunner().On(connTestCommand, testutil.Response{Err: errors.New("refused")})
	newInspector(runner).Check(context.Background(), "mac.local")
	if runner.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", runner.CallCount())
	}
}

func TestSoftwareInfo(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On(connTestCommand, testutil.Response{Out: "Connection test"}).
		On(ReadCommand("/lic"), testutil.Response{Out: "Expires: 2023/11/01"})

	info := newInspector(runner).SoftwareInfo(context.Background(), "mac.local")
	want := "[EXPIRED] 2023-11-01 (31 days overdue) [Countdown: 31 days overdue]"
	if info.CometLicenseExpiry != want {
		t.Errorf("CometLicenseExpiry = %q, want %q", info.CometLicenseExpiry, want)
	}
}

func TestHandleBatchPreservesOrder(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On(connTestCommand, testutil.Response{Out: "Connection test"}).
		OnHost("a.local", ReadCommand("/lic"), testutil.Response{Out: "Expires: 2024/01/01", Delay: 50 * time.Millisecond}).
		OnHost("b.local", ReadCommand("/lic"), testutil.Response{Out: ""})

	v := viper.New()
	v.Set("license.path", "/lic")
	m := New(runner, WithClock(testutil.NewClock(date(2023, 12, 1)).Now))
	if err := m.Init(config.New(v).Section("license"), zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/check", strings.NewReader(`{"hosts":["a.local","b.local"]}`))
	w := httptest.NewRecorder()
	m.handleBatch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got []models.LicenseStatus
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Host != "a.local" || got[1].Host != "b.local" {
		t.Fatalf("results = %+v, want a.local then b.local", got)
	}
	if got[0].Band != models.LicenseNotice || got[1].Status != StatusNoExpiration {
		t.Errorf("results = %+v", got)
	}
}

func TestHandleBatchRejectsEmpty(t *testing.T) {
	m := New(testutil.NewFakeRunner())
	_ = m.Init(config.New(nil), zap.NewNop())

	w := httptest.NewRecorder()
	m.handleBatch(w, httptest.NewRequest("POST", "/check", strings.NewReader(`{"hosts":[]}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCheck_BandsFollowClock(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On(connTestCommand, testutil.Response{Out: "Connection test"}).
		On(ReadCommand("/lic"), testutil.Response{Out: "Expires: 2024/01/01"})
	clock := testutil.NewClock(time.Time{})
	in := NewInspector(runner, zap.NewNop(), WithPath("/lic"), WithClock(clock.Now))

	steps := []struct {
		addDays int
		status  string
	}{
		{0, "[NOTICE] Expires 2024-01-01 [Countdown: 31 days remaining]"},
		{10, "[WARNING] Expires 2024-01-01 [Countdown: 21 days remaining]"},
		{21, "[WARNING] Expires 2024-01-01 [Countdown: 0 days remaining]"},
		{9, "[EXPIRED] 2024-01-01 (10 days overdue) [Countdown: 10 days overdue]"},
	}
	for _, s := range steps {
		clock.AddDays(s.addDays)
		if got := in.Check(context.Background(), "mac.local").Status; got != s.status {
			t.Errorf("on %s: Status = %q, want %q", clock.Now().Format("2006-01-02"), got, s.status)
		}
	}
}
