// Package sshexec provides an implementation of remote.Executor using
// golang.org/x/crypto/ssh, one connection per command.
package sshexec

import (
	"bytes"
	"context"
	"io/ioutil"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/time/rate"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/remote"
)

var ErrNoAddress = errors.New("machine has no address")

type Config struct {
	User string
	// Port (name or number) used when the machine address has none. Defaults to "ssh".
	Port    string
	Signers []ssh.Signer
	// Optional; when empty host keys are not verified.
	KnownHostsFile string
	// Commands run from here when set.
	WorkDir     string
	DialTimeout time.Duration
	// Extra dial attempts for background runs.
	DialRetries uint64
	// Limits new connections across all goroutines. Nil means unlimited.
	Limiter *rate.Limiter
}

// An Executor opens an SSH connection per Run and closes it when the command
// (or, in background mode, the hand-off) is done.
type Executor struct {
	cfg     Config
	hostKey ssh.HostKeyCallback
}

func New(cfg Config) (*Executor, error) {
	hk := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		var err error
		if hk, err = knownhosts.New(cfg.KnownHostsFile); err != nil {
			return nil, errors.Wrapf(err, "reading known hosts %s", cfg.KnownHostsFile)
		}
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Executor{cfg: cfg, hostKey: hk}, nil
}

// LoadSigners reads private keys from files.
func LoadSigners(paths ...string) ([]ssh.Signer, error) {
	var signers []ssh.Signer
	for _, p := range paths {
		raw, err := ioutil.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "reading key %s", p)
		}
		s, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing key %s", p)
		}
		signers = append(signers, s)
	}
	return signers, nil
}

func (e *Executor) Run(ctx context.Context, machine cluster.Machine, command string, background bool) (int, error) {
	_, code, err := e.exec(ctx, machine, command, background, false)
	return code, err
}

func (e *Executor) Output(ctx context.Context, machine cluster.Machine, command string) ([]byte, int, error) {
	return e.exec(ctx, machine, command, false, true)
}

func (e *Executor) exec(ctx context.Context, machine cluster.Machine, command string, background, capture bool) ([]byte, int, error) {
	client, err := e.connect(ctx, machine, background)
	if err != nil {
		return nil, -1, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, -1, errors.Wrapf(err, "opening session on %s", machine)
	}
	defer session.Close()

	var stdout bytes.Buffer
	if capture {
		session.Stdout = &stdout
	}
	line := remote.Compose(e.cfg.WorkDir, command, background)
	log.Debugf("%s: %s", machine, line)

	done := make(chan error, 1)
	go func() { done <- session.Run(line) }()
	select {
	case <-ctx.Done():
		// Closing the client unblocks session.Run.
		client.Close()
		return nil, -1, ctx.Err()
	case err = <-done:
	}
	if err == nil {
		return stdout.Bytes(), 0, nil
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return stdout.Bytes(), exitErr.ExitStatus(), nil
	}
	return nil, -1, errors.Wrapf(err, "running on %s", machine)
}

// connect dials machine. Background runs retry the dial with exponential
// backoff; foreground runs (probes) get one attempt so they stay bounded.
func (e *Executor) connect(ctx context.Context, machine cluster.Machine, background bool) (*ssh.Client, error) {
	if e.cfg.Limiter != nil {
		if err := e.cfg.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var client *ssh.Client
	dial := func() error {
		var err error
		client, err = e.dial(ctx, machine)
		if err != nil {
			log.Debugf("dialing %s: %v", machine, err)
		}
		return err
	}
	var err error
	if !background || e.cfg.DialRetries == 0 {
		err = dial()
	} else {
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.cfg.DialRetries), ctx)
		err = backoff.Retry(dial, b)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (e *Executor) dial(ctx context.Context, machine cluster.Machine) (*ssh.Client, error) {
	addr := e.hostPort(machine)
	if addr == "" {
		return nil, ErrNoAddress
	}
	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", machine)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            e.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(e.cfg.Signers...)},
		HostKeyCallback: e.hostKey,
		Timeout:         e.cfg.DialTimeout,
	})
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s", machine)
	}
	// Handshake done; the session itself is bounded by ctx instead.
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

func (e *Executor) hostPort(machine cluster.Machine) string {
	addr := machine.Address
	if addr == "" {
		return ""
	}
	h, p, err := net.SplitHostPort(addr)
	if err != nil || p == "" {
		// Address does not specify a port. Use the configured one, or "ssh".
		if h == "" {
			h = addr
		}
		if p = e.cfg.Port; p == "" {
			p = "ssh"
		}
	}
	return net.JoinHostPort(h, p)
}

var _ remote.Executor = (*Executor)(nil)
var _ remote.Querier = (*Executor)(nil)
