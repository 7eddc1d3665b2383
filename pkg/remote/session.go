package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/wpsteward/steward/pkg/log"
	"github.com/wpsteward/steward/pkg/metrics"
	"github.com/wpsteward/steward/pkg/types"
)

// CommandResult carries the outcome of one remote command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports whether the command exited zero.
func (r *CommandResult) Ok() bool {
	return r.ExitCode == 0
}

// Runner is the remote execution surface handlers run against. A live
// *Session implements it; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd string) (*CommandResult, error)
	Sudo(ctx context.Context, cmd string) (*CommandResult, error)
	Put(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error
	Fetch(ctx context.Context, remotePath string) ([]byte, error)
	Site() *types.SiteRecord
}

// ConnectOptions tunes session establishment.
type ConnectOptions struct {
	ConnectTimeout time.Duration
}

// Session is an established SSH connection to one site.
type Session struct {
	site    *types.SiteRecord
	client  *ssh.Client
	cleanup func()
}

// Connect dials the site over SSH. Inline PEM credentials are
// materialized for the lifetime of the session and removed on Close.
func Connect(ctx context.Context, site *types.SiteRecord, opts ConnectOptions) (*Session, error) {
	keyPath, cleanup, err := MaterializeCredential(site)
	if err != nil {
		return nil, err
	}

	var auth []ssh.AuthMethod
	if keyPath != "" {
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("reading ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("parsing ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if site.Password != "" {
		auth = append(auth, ssh.Password(site.Password))
	}

	cfg := &ssh.ClientConfig{
		User:            site.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         opts.ConnectTimeout,
	}

	timer := metrics.NewTimer()
	client, err := dialContext(ctx, site.Addr(), cfg)
	if err != nil {
		metrics.SSHConnectFailures.Inc()
		cleanup()
		return nil, fmt.Errorf("ssh dial %s: %w", site.Host, err)
	}
	timer.ObserveDuration(metrics.SSHConnectDuration)

	log.WithHost(site.Host).Debug().Str("user", site.User).Msg("ssh session established")
	return &Session{site: site, client: client, cleanup: cleanup}, nil
}

func dialContext(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	type dialed struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialed, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, cfg)
		ch <- dialed{c, err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if d := <-ch; d.client != nil {
				d.client.Close()
			}
		}()
		return nil, ctx.Err()
	case d := <-ch:
		return d.client, d.err
	}
}

// Site returns the record this session was opened for.
func (s *Session) Site() *types.SiteRecord {
	return s.site
}

// Close tears down the connection and removes any materialized key.
func (s *Session) Close() error {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Run executes cmd on the remote host and captures its output. A
// non-zero exit is reported in the result, not as an error; errors mean
// the command could not be run at all.
func (s *Session) Run(ctx context.Context, cmd string) (*CommandResult, error) {
	return s.run(ctx, cmd, "")
}

// Sudo executes cmd with root privileges. When the session user is
// already root the command runs directly; otherwise it goes through
// sudo with the password fed on stdin so it never appears in the
// command line.
func (s *Session) Sudo(ctx context.Context, cmd string) (*CommandResult, error) {
	if s.site.User == "root" {
		return s.run(ctx, cmd, "")
	}
	wrapped := fmt.Sprintf("sudo -S -p '' bash -c %s", ShellQuote(cmd))
	return s.run(ctx, wrapped, s.site.EffectiveSudoPassword()+"\n")
}

func (s *Session) run(ctx context.Context, cmd, stdin string) (*CommandResult, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening ssh channel: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if stdin != "" {
		sess.Stdin = strings.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		sess.Close()
		<-done
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	switch e := err.(type) {
	case nil:
	case *ssh.ExitError:
		result.ExitCode = e.ExitStatus()
	case *ssh.ExitMissingError:
		result.ExitCode = -1
	default:
		return nil, fmt.Errorf("running remote command: %w", err)
	}
	return result, nil
}

// Put writes content to remotePath over SFTP with the given mode,
// creating parent directories as needed.
func (s *Session) Put(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("opening sftp: %w", err)
	}
	defer client.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		_ = client.MkdirAll(dir)
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", remotePath, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", remotePath, err)
	}
	if err := client.Chmod(remotePath, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", remotePath, err)
	}
	return nil
}

// Fetch reads remotePath over SFTP and returns its contents.
func (s *Session) Fetch(ctx context.Context, remotePath string) ([]byte, error) {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("opening sftp: %w", err)
	}
	defer client.Close()

	f, err := client.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", remotePath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", remotePath, err)
	}
	return data, nil
}

// Open returns a streaming reader for remotePath. The caller must close
// both the reader and, eventually, the session.
func (s *Session) Open(remotePath string) (io.ReadCloser, error) {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("opening sftp: %w", err)
	}
	f, err := client.Open(remotePath)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening %s: %w", remotePath, err)
	}
	return &sftpReader{f: f, client: client}, nil
}

type sftpReader struct {
	f      *sftp.File
	client *sftp.Client
}

func (r *sftpReader) Read(p []byte) (int, error) { return r.f.Read(p) }

func (r *sftpReader) Close() error {
	err := r.f.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Verify probes the host with a trivial command and returns the remote
// uname line. It is the gate every session-open request passes through.
func (s *Session) Verify(ctx context.Context) (string, error) {
	res, err := s.Run(ctx, "echo ok && uname -a")
	if err != nil {
		return "", err
	}
	if !res.Ok() || !strings.HasPrefix(strings.TrimSpace(res.Stdout), "ok") {
		return "", fmt.Errorf("ssh probe failed: %s", strings.TrimSpace(res.Stderr))
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) > 1 {
		return strings.TrimSpace(lines[len(lines)-1]), nil
	}
	return "", nil
}
