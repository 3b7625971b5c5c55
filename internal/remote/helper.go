package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// sshFailureStatus is the exit status ssh reserves for its own errors.
	sshFailureStatus = 255
	// maxHelperOutput is expect's match buffer, the most output one call
	// can return.
	maxHelperOutput = 8 << 20
)

// HelperExecutor drives the system ssh client through an expect session
// helper. The interaction script, which carries the credential, is written
// to the helper's stdin so the secret never appears in argv or the
// environment of any process.
type HelperExecutor struct {
	command        []string
	port           int
	connectTimeout time.Duration
	commandTimeout time.Duration
	knownHosts     string
	insecure       bool
	logger         *zap.Logger
}

// Compile-time interface guard.
var _ Executor = (*HelperExecutor)(nil)

// NewHelperExecutor creates an executor that spawns cfg.HelperCommand once
// per call.
func NewHelperExecutor(cfg Config, logger *zap.Logger) (*HelperExecutor, error) {
	cfg = cfg.withDefaults()
	knownHosts, err := expandHome(cfg.KnownHostsFile)
	if err != nil {
		return nil, err
	}
	return &HelperExecutor{
		command:        cfg.HelperCommand,
		port:           cfg.Port,
		connectTimeout: cfg.ConnectTimeout,
		commandTimeout: cfg.CommandTimeout,
		knownHosts:     knownHosts,
		insecure:       cfg.InsecureIgnoreHostKey,
		logger:         logger,
	}, nil
}

// Execute spawns one helper process, feeds it the interaction script and
// classifies what it printed. The process is always reaped before returning.
func (h *HelperExecutor) Execute(ctx context.Context, host, username, credential, command string) (string, error) {
	if _, ok := ctx.Deadline(); !ok && h.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.commandTimeout+h.connectTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, h.command[0], h.command[1:]...) //nolint:gosec // helper binary comes from config
	cmd.Stdin = strings.NewReader(h.script(host, username, credential, command))
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", ioError(fmt.Sprintf("Failed to spawn SSH process: %v", err), err)
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return "", connectionError("Connection timed out", ctx.Err())
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return "", ioError(fmt.Sprintf("Failed to get command output: %v", waitErr), waitErr)
	}

	out, err := Classify(stdout.String(), stderr.String())
	if err != nil {
		return "", err
	}
	if exitErr == nil || out != "" {
		return out, nil
	}
	detail := strings.Join(significantLines(stderr.String()), "; ")
	switch {
	case exitErr.ExitCode() == sshFailureStatus:
		// ssh itself failed; text such as "Host key verification failed."
		// or an unresolvable name matches no keyword.
		if detail == "" {
			detail = "ssh exited with status 255"
		}
		return "", connectionError("Connection failed: "+detail, waitErr)
	case detail != "":
		return "", ioError("SSH helper failed: "+detail, waitErr)
	}
	return out, nil
}

// script renders the expect program for one call. ssh's own failures exit
// with status 255; their text is routed to stderr so Classify sees it, and
// the helper exits with ssh's status.
func (h *HelperExecutor) script(host, username, credential, command string) string {
	args := []string{"-p", strconv.Itoa(h.port)}
	args = append(args, "-o", "ConnectTimeout="+strconv.Itoa(int(h.connectTimeout.Seconds())))
	args = append(args, "-o", "NumberOfPasswordPrompts=1")
	if h.insecure {
		args = append(args, "-o", "StrictHostKeyChecking=no")
	} else {
		args = append(args, "-o", "StrictHostKeyChecking=yes", "-o", "UserKnownHostsFile="+h.knownHosts)
	}
	args = append(args, username+"@"+host, command)

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = tclQuote(a)
	}

	var b strings.Builder
	b.WriteString("log_user 0\n")
	fmt.Fprintf(&b, "match_max %d\n", maxHelperOutput)
	fmt.Fprintf(&b, "set timeout %d\n", int(h.commandTimeout.Seconds()))
	fmt.Fprintf(&b, "spawn -noecho ssh %s\n", strings.Join(quoted, " "))
	// The prompt is answered once. After that only eof or timeout end the
	// session, so command output that mentions a password is never matched.
	b.WriteString(`set closed 0
expect {
    -nocase "assword:" {
`)
	fmt.Fprintf(&b, "        send -- %s\n", tclQuote(credential))
	b.WriteString(`        send -- "\r"
    }
    timeout {
        puts stderr "Connection timed out"
        exit 1
    }
    eof {
        set closed 1
    }
}
if {!$closed} {
    expect {
        timeout {
            puts stderr "Connection timed out"
            exit 1
        }
        eof
    }
}
set out [string map {"\r" ""} $expect_out(buffer)]
set status [lindex [wait] 3]
if {$status == 255} {
    puts -nonewline stderr $out
} else {
    puts -nonewline stdout $out
}
exit $status
`)
	return b.String()
}

// tclQuote renders s as a double-quoted Tcl word with every substitution
// character escaped.
func tclQuote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\', '"', '$', '[', ']', '{', '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
