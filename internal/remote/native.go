package remote

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// NativeExecutor speaks SSH in-process with golang.org/x/crypto/ssh. Dial,
// handshake and command all stop when ctx is done.
type NativeExecutor struct {
	port           int
	connectTimeout time.Duration
	commandTimeout time.Duration
	hostKeys       ssh.HostKeyCallback
	logger         *zap.Logger
}

// Compile-time interface guard.
var _ Executor = (*NativeExecutor)(nil)

// NewNativeExecutor creates an in-process SSH executor.
func NewNativeExecutor(cfg Config, logger *zap.Logger) (*NativeExecutor, error) {
	cfg = cfg.withDefaults()
	cb, err := hostKeyCallback(cfg.KnownHostsFile, cfg.InsecureIgnoreHostKey)
	if err != nil {
		return nil, err
	}
	return &NativeExecutor{
		port:           cfg.Port,
		connectTimeout: cfg.ConnectTimeout,
		commandTimeout: cfg.CommandTimeout,
		hostKeys:       cb,
		logger:         logger,
	}, nil
}

// Execute opens a session to host, runs command and classifies the output.
func (e *NativeExecutor) Execute(ctx context.Context, host, username, credential, command string) (string, error) {
	if _, ok := ctx.Deadline(); !ok && e.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.commandTimeout)
		defer cancel()
	}

	client, err := e.dial(ctx, host, username, credential)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", connectionError("Connection closed", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case runErr := <-done:
		if runErr != nil {
			var exitErr *ssh.ExitError
			var missing *ssh.ExitMissingError
			switch {
			case errors.As(runErr, &exitErr):
				// The command ran; its output still decides the result.
				e.logger.Debug("remote command exited non-zero",
					zap.String("host", host),
					zap.Int("status", exitErr.ExitStatus()),
				)
			case errors.As(runErr, &missing):
				if strings.TrimSpace(stdout.String()) == "" {
					return "", connectionError("Connection closed", runErr)
				}
			default:
				return "", ioError("Failed to get command output: "+runErr.Error(), runErr)
			}
		}
		return Classify(stdout.String(), stderr.String())

	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		client.Close()
		<-done
		return "", connectionError("Connection timed out", ctx.Err())
	}
}

func (e *NativeExecutor) dial(ctx context.Context, host, username, credential string) (*ssh.Client, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, strconv.Itoa(e.port))
	}

	dialer := &net.Dialer{Timeout: e.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(err)
	}

	// Bound the handshake by the context deadline; cleared once connected.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	config := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{
			ssh.Password(credential),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = credential
				}
				return answers, nil
			}),
		},
		HostKeyCallback: e.hostKeys,
		Timeout:         e.connectTimeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, classifyHandshakeError(ctx, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func classifyDialError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return connectionError("Connection timed out", err)
	case strings.Contains(strings.ToLower(err.Error()), "refused"):
		return connectionError("Connection refused", err)
	default:
		return connectionError("Connection failed: "+err.Error(), err)
	}
}

func classifyHandshakeError(ctx context.Context, err error) error {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		if len(keyErr.Want) > 0 {
			return connectionError("Host key mismatch", err)
		}
		return connectionError("Host key not in known hosts", err)
	}
	if ctx.Err() != nil {
		return connectionError("Connection timed out", ctx.Err())
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "knownhosts: key mismatch"):
		return connectionError("Host key mismatch", err)
	case strings.Contains(msg, "knownhosts: key is unknown"):
		return connectionError("Host key not in known hosts", err)
	case strings.Contains(msg, "unable to authenticate"):
		return authError("Permission denied", err)
	case strings.Contains(msg, "too many authentication failures"):
		return authError("Max authentication attempts reached", err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return connectionError("Connection timed out", err)
	default:
		return connectionError("Connection closed", err)
	}
}
