package sshexec

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/remote"
	"github.com/vislab/fleet/remote/sshtest"
)

type fixture struct {
	server  *sshtest.SSHService
	exec    *Executor
	machine cluster.Machine
}

func setup(t *testing.T, fn sshtest.ExecFunc) *fixture {
	_, hostKey, err := sshtest.NewKey()
	if err != nil {
		t.Fatal(err)
	}
	clientPub, clientKey, err := sshtest.NewKey()
	if err != nil {
		t.Fatal(err)
	}
	srv := &sshtest.SSHService{
		Exec:           fn,
		HostKey:        hostKey,
		AuthorizedUser: "lab",
		AuthorizedKeys: []ssh.PublicKey{clientPub},
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	host, port, _ := net.SplitHostPort(srv.Address())
	exec, err := New(Config{
		User:        "lab",
		Port:        port,
		Signers:     []ssh.Signer{clientKey},
		WorkDir:     "/work",
		DialTimeout: 5 * time.Second,
		Limiter:     rate.NewLimiter(rate.Inf, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	m := cluster.Machine{Key: cluster.Key{Id: 1, Class: cluster.General}, Name: "vision01", Address: host}
	return &fixture{server: srv, exec: exec, machine: m}
}

func TestForegroundRunReturnsExitCode(t *testing.T) {
	f := setup(t, func(cmd string, stdout, stderr io.Writer) uint32 {
		if strings.Contains(cmd, "fail") {
			return 3
		}
		return 0
	})
	defer f.server.Close()

	code, err := f.exec.Run(context.Background(), f.machine, "fail now", false)
	if err != nil || code != 3 {
		t.Fatalf("expected exit 3, got %d %v", code, err)
	}
	code, err = f.exec.Run(context.Background(), f.machine, remote.NoOp, false)
	if err != nil || code != 0 {
		t.Fatalf("expected exit 0, got %d %v", code, err)
	}
	cmds := f.server.Commands()
	if len(cmds) != 2 || cmds[1] != "cd '/work' && true" {
		t.Fatalf("unexpected commands received: %q", cmds)
	}
}

func TestBackgroundRunDetaches(t *testing.T) {
	f := setup(t, func(cmd string, stdout, stderr io.Writer) uint32 { return 0 })
	defer f.server.Close()

	if _, err := f.exec.Run(context.Background(), f.machine, "python render.py 3", true); err != nil {
		t.Fatal(err)
	}
	cmds := f.server.Commands()
	if len(cmds) != 1 || !strings.HasPrefix(cmds[0], "nohup sh -c ") || !strings.HasSuffix(cmds[0], "&") ||
		!strings.Contains(cmds[0], "python render.py 3") {
		t.Fatalf("expected a detached command, got %q", cmds)
	}
}

func TestOutput(t *testing.T) {
	f := setup(t, func(cmd string, stdout, stderr io.Writer) uint32 {
		io.WriteString(stdout, "  PID TTY      STAT   TIME COMMAND\n")
		return 0
	})
	defer f.server.Close()

	out, code, err := f.exec.Output(context.Background(), f.machine, "ps a x")
	if err != nil || code != 0 || !strings.Contains(string(out), "PID") {
		t.Fatalf("unexpected output %q %d %v", out, code, err)
	}
}

func TestContextBoundsHungCommand(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := setup(t, func(cmd string, stdout, stderr io.Writer) uint32 {
		<-release
		return 0
	})
	defer f.server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := f.exec.Run(ctx, f.machine, "sleep forever", false); err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("Run ignored its context")
	}
}

func TestRejectedKey(t *testing.T) {
	f := setup(t, func(cmd string, stdout, stderr io.Writer) uint32 { return 0 })
	defer f.server.Close()
	_, otherKey, _ := sshtest.NewKey()
	f.exec.cfg.Signers = []ssh.Signer{otherKey}

	if _, err := f.exec.Run(context.Background(), f.machine, remote.NoOp, false); err == nil {
		t.Fatalf("expected authentication failure")
	}
	if len(f.server.Commands()) != 0 {
		t.Fatalf("server ran a command for an unauthenticated client")
	}
}

func TestUnreachableMachine(t *testing.T) {
	exec, _ := New(Config{User: "lab", DialTimeout: time.Second, DialRetries: 2})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := cluster.Machine{Key: cluster.Key{Id: 2, Class: cluster.General}, Name: "vision02", Address: addr}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := exec.Run(ctx, m, "true", true); err == nil {
		t.Fatalf("expected dial failure")
	}
	if _, err := exec.Run(ctx, cluster.Machine{Name: "nowhere"}, "true", false); err != ErrNoAddress {
		t.Fatalf("expected ErrNoAddress, got %v", err)
	}
}

func TestHostPort(t *testing.T) {
	e := &Executor{cfg: Config{}}
	m := cluster.Machine{Address: "vision01.lab"}
	if got := e.hostPort(m); got != "vision01.lab:ssh" {
		t.Fatalf("got %q", got)
	}
	e.cfg.Port = "2222"
	if got := e.hostPort(m); got != "vision01.lab:2222" {
		t.Fatalf("got %q", got)
	}
	m.Address = "10.0.0.1:22"
	if got := e.hostPort(m); got != "10.0.0.1:22" {
		t.Fatalf("got %q", got)
	}
}
