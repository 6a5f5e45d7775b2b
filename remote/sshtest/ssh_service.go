// Package sshtest runs an in-process SSH server for transport tests.
package sshtest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// NewKey returns a fresh ed25519 keypair.
func NewKey() (ssh.PublicKey, ssh.Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, nil, err
	}
	return sshPub, signer, nil
}

// An ExecFunc handles an "exec" session and returns its exit status.
type ExecFunc func(command string, stdout, stderr io.Writer) uint32

// An SSHService accepts SSH connections on an available TCP port and passes
// clients' "exec" sessions to Exec.
type SSHService struct {
	Exec           ExecFunc
	HostKey        ssh.Signer
	AuthorizedUser string
	AuthorizedKeys []ssh.PublicKey

	listener net.Listener
	mtx      sync.Mutex
	closed   bool
	commands []string
}

// Start listens on a loopback port.
func (ss *SSHService) Start() error {
	config := &ssh.ServerConfig{
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			if ss.AuthorizedUser != "" && c.User() != ss.AuthorizedUser {
				return nil, fmt.Errorf("unknown user %q", c.User())
			}
			for _, ak := range ss.AuthorizedKeys {
				if bytes.Equal(ak.Marshal(), pubKey.Marshal()) {
					return &ssh.Permissions{}, nil
				}
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
	}
	config.AddHostKey(ss.HostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	ss.mtx.Lock()
	ss.listener = listener
	ss.mtx.Unlock()

	go func() {
		for {
			nConn, err := listener.Accept()
			if err != nil {
				ss.mtx.Lock()
				closed := ss.closed
				ss.mtx.Unlock()
				if !closed {
					log.Errorf("accept: %s", err)
				}
				return
			}
			go ss.serveConn(nConn, config)
		}
	}()
	return nil
}

// Address returns the host:port where the server is listening.
func (ss *SSHService) Address() string {
	ss.mtx.Lock()
	defer ss.mtx.Unlock()
	if ss.listener == nil {
		return ""
	}
	return ss.listener.Addr().String()
}

// Commands returns the commands received so far.
func (ss *SSHService) Commands() []string {
	ss.mtx.Lock()
	defer ss.mtx.Unlock()
	return append([]string(nil), ss.commands...)
}

func (ss *SSHService) Close() {
	ss.mtx.Lock()
	ss.closed = true
	ln := ss.listener
	ss.mtx.Unlock()
	if ln != nil {
		ln.Close()
	}
}

func (ss *SSHService) serveConn(nConn net.Conn, config *ssh.ServerConfig) {
	defer nConn.Close()
	conn, newchans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		log.Debugf("ssh.NewServerConn: %s", err)
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)
	for newch := range newchans {
		if newch.ChannelType() != "session" {
			newch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, reqs, err := newch.Accept()
		if err != nil {
			log.Errorf("accept channel: %s", err)
			return
		}
		go ss.serveSession(ch, reqs)
	}
}

func (ss *SSHService) serveSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	didExec := false
	for req := range reqs {
		switch {
		case didExec:
			req.Reply(false, nil)
		case req.Type == "exec":
			var execReq struct {
				Command string
			}
			req.Reply(true, nil)
			ssh.Unmarshal(req.Payload, &execReq)
			ss.mtx.Lock()
			ss.commands = append(ss.commands, execReq.Command)
			ss.mtx.Unlock()
			go func() {
				var resp struct {
					Status uint32
				}
				resp.Status = ss.Exec(execReq.Command, ch, ch.Stderr())
				ch.SendRequest("exit-status", false, ssh.Marshal(&resp))
				ch.Close()
			}()
			didExec = true
		default:
			req.Reply(strings.HasPrefix(req.Type, "env"), nil)
		}
	}
}
