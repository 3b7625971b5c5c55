package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type execReply struct {
	stdout string
	stderr string
	status uint32
	delay  time.Duration
}

// startSSHServer runs an in-process SSH server that accepts one password
// and answers every exec request through reply.
func startSSHServer(t *testing.T, password string, reply func(cmd string) execReply) (string, ssh.Signer) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if string(pw) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(nc, cfg, reply)
		}
	}()
	return ln.Addr().String(), signer
}

func serveSSHConn(nc net.Conn, cfg *ssh.ServerConfig, reply func(string) execReply) {
	sconn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range chReqs {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				r := reply(payload.Command)
				if r.delay > 0 {
					time.Sleep(r.delay)
				}
				_, _ = io.WriteString(ch, r.stdout)
				_, _ = io.WriteString(ch.Stderr(), r.stderr)
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{r.status}))
				return
			}
		}()
	}
}

func newInsecureNative(t *testing.T) *NativeExecutor {
	t.Helper()
	e, err := NewNativeExecutor(Config{InsecureIgnoreHostKey: true, ConnectTimeout: 2 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestNativeExecutor_RunsCommand(t *testing.T) {
	addr, _ := startSSHServer(t, "s3cret", func(cmd string) execReply {
		return execReply{stdout: "ran: " + cmd + "\n", stderr: "Warning: Permanently added 'x'\n"}
	})

	got, err := newInsecureNative(t).Execute(context.Background(), addr, "admin", "s3cret", "echo CONN_TEST_OK")
	require.NoError(t, err)
	assert.Equal(t, "ran: echo CONN_TEST_OK", got)
}

func TestNativeExecutor_NonZeroExitStillClassified(t *testing.T) {
	addr, _ := startSSHServer(t, "s3cret", func(string) execReply {
		return execReply{stderr: "grep: /nope: Permission denied\n", status: 2}
	})

	_, err := newInsecureNative(t).Execute(context.Background(), addr, "admin", "s3cret", "grep x /nope")
	assert.True(t, errors.Is(err, ErrAuthentication), "err = %v", err)
}

func TestNativeExecutor_WrongPassword(t *testing.T) {
	addr, _ := startSSHServer(t, "s3cret", func(string) execReply { return execReply{} })

	_, err := newInsecureNative(t).Execute(context.Background(), addr, "admin", "wrong", "true")
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err), "err = %v", err)
}

func TestNativeExecutor_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = newInsecureNative(t).Execute(context.Background(), addr, "admin", "pw", "true")
	assert.True(t, errors.Is(err, ErrConnection), "err = %v", err)
}

func TestNativeExecutor_ContextTimeoutCancels(t *testing.T) {
	addr, _ := startSSHServer(t, "s3cret", func(string) execReply {
		return execReply{stdout: "late", delay: 3 * time.Second}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newInsecureNative(t).Execute(ctx, addr, "admin", "s3cret", "sleep 3")
	assert.True(t, errors.Is(err, ErrConnection), "err = %v", err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNativeExecutor_KnownHosts(t *testing.T) {
	addr, signer := startSSHServer(t, "s3cret", func(string) execReply {
		return execReply{stdout: "ok"}
	})

	dir := t.TempDir()
	good := filepath.Join(dir, "known_hosts")
	require.NoError(t, os.WriteFile(good, []byte(knownhosts.Line([]string{addr}, signer.PublicKey())+"\n"), 0o600))

	e, err := NewNativeExecutor(Config{KnownHostsFile: good}, zap.NewNop())
	require.NoError(t, err)
	got, err := e.Execute(context.Background(), addr, "admin", "s3cret", "true")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherSigner, err := ssh.NewSignerFromKey(otherPriv)
	require.NoError(t, err)
	bad := filepath.Join(dir, "known_hosts_bad")
	require.NoError(t, os.WriteFile(bad, []byte(knownhosts.Line([]string{addr}, otherSigner.PublicKey())+"\n"), 0o600))

	e, err = NewNativeExecutor(Config{KnownHostsFile: bad}, zap.NewNop())
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), addr, "admin", "s3cret", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Host key mismatch")
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "telnet", InsecureIgnoreHostKey: true}, zap.NewNop())
	assert.Error(t, err)
}
