package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	bi := Get()
	if bi.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", bi.GoVersion, runtime.Version())
	}
	if want := runtime.GOOS + "/" + runtime.GOARCH; bi.Platform != want {
		t.Errorf("Platform = %q, want %q", bi.Platform, want)
	}
	if bi.Version == "" || bi.GitCommit == "" || bi.BuildDate == "" {
		t.Errorf("Get() left a field empty: %+v", bi)
	}
}

func TestLdflagsWin(t *testing.T) {
	old := [3]string{Version, GitCommit, BuildDate}
	t.Cleanup(func() { Version, GitCommit, BuildDate = old[0], old[1], old[2] })
	Version, GitCommit, BuildDate = "1.2.3", "abc123", "2025-01-01"

	bi := Get()
	if bi.Version != "1.2.3" || bi.GitCommit != "abc123" || bi.BuildDate != "2025-01-01" {
		t.Errorf("Get() = %+v, want ldflags values", bi)
	}
	if Short() != "1.2.3" {
		t.Errorf("Short() = %q, want 1.2.3", Short())
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	if !strings.HasPrefix(info, "fleetscope ") {
		t.Errorf("Info() = %q, want fleetscope prefix", info)
	}
	if !strings.Contains(info, runtime.Version()) {
		t.Errorf("Info() = %q, missing Go version", info)
	}
}
