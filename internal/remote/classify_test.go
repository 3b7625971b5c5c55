package remote

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		stderr   string
		want     string
		wantKind Kind
	}{
		{
			name:   "stdout wins over host key noise",
			stdout: "hello\n",
			stderr: "Warning: Permanently added 'mac.local' (ED25519) to the list of known hosts.\n",
			want:   "hello",
		},
		{
			name:   "stdout wins over benign warning",
			stdout: "  data  ",
			stderr: "error: something noisy but harmless",
			want:   "data",
		},
		{
			name:     "permission denied",
			stderr:   "ph-admin@mac.local: Permission denied (publickey,password).",
			wantKind: KindAuthentication,
		},
		{
			name:     "too many auth failures",
			stderr:   "Received disconnect: Too many authentication failures",
			wantKind: KindAuthentication,
		},
		{
			name:     "account locked",
			stderr:   "Account is locked",
			wantKind: KindAuthentication,
		},
		{
			name:     "connection closed",
			stderr:   "Connection closed by 10.0.0.4 port 22",
			wantKind: KindConnection,
		},
		{
			name:     "connection timed out",
			stderr:   "ssh: connect to host mac.local port 22: Operation timed out",
			wantKind: KindConnection,
		},
		{
			name:     "connection refused",
			stderr:   "ssh: connect to host mac.local port 22: Connection refused",
			wantKind: KindConnection,
		},
		{
			name:     "generic fatal",
			stderr:   "fatal: not a git repository",
			wantKind: KindIO,
		},
		{
			name:   "noise only is success",
			stderr: "Attempting authentication\nAuthentication failed, attempt 1\nWarning: Permanently added 'x'",
			want:   "",
		},
		{
			name:   "unrecognised stderr is success",
			stderr: "some harmless chatter",
			want:   "",
		},
		{
			name: "nothing at all",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.stdout, tt.stderr)
			if tt.wantKind != 0 {
				if err == nil {
					t.Fatalf("Classify() = %q, nil; want %s error", got, tt.wantKind)
				}
				if k := KindOf(err); k != tt.wantKind {
					t.Errorf("KindOf(err) = %s, want %s (err = %v)", k, tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_NoiseFilteredBeforeMatching(t *testing.T) {
	// The noise line mentions "failed" but must not count as an error.
	_, err := Classify("", "Authentication failed, attempt 1 of 3: fatal: retry")
	if err != nil {
		t.Errorf("Classify() error = %v, want nil", err)
	}
}

func TestError_IsSentinels(t *testing.T) {
	err := error(authError("Permission denied", nil))
	if !errors.Is(err, ErrAuthentication) {
		t.Error("errors.Is(auth, ErrAuthentication) = false")
	}
	if errors.Is(err, ErrConnection) {
		t.Error("errors.Is(auth, ErrConnection) = true")
	}

	err = withHost(connectionError("Connection closed", nil), "mac.local")
	if got, want := err.Error(), "Connection Error: Connection closed (host mac.local)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
