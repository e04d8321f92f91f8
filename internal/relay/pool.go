// Package relay implements the standalone classification relay: a loopback
// HTTP endpoint in front of a small pool of pre-warmed classifier
// subprocesses, so callers never pay cold-start latency.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("classifier pool closed")

// Proc is one spawned classifier subprocess. The contract is one-shot: the
// request JSON goes to stdin, the verdict array comes back on stdout, then
// the process exits.
type Proc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// Run feeds payload to the subprocess and returns its stdout.
func (p *Proc) Run(ctx context.Context, payload []byte) ([]byte, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = p.cmd.Process.Kill()
		case <-done:
		}
	}()
	defer close(done)

	if _, err := p.stdin.Write(payload); err != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
		return nil, fmt.Errorf("classifier stdin: %w", err)
	}
	_ = p.stdin.Close()

	out := new(bytes.Buffer)
	if _, err := io.Copy(out, p.stdout); err != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
		return nil, fmt.Errorf("classifier stdout: %w", err)
	}
	if err := p.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("classifier exit: %w", err)
	}
	return out.Bytes(), nil
}

// Kill terminates the subprocess without running it.
func (p *Proc) Kill() {
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
	_ = p.cmd.Wait()
}

// Pool keeps classifier subprocesses pre-warmed. Acquire takes a warm one
// when available and replenishes asynchronously; on exhaustion it spawns on
// demand rather than blocking.
type Pool struct {
	mu     sync.Mutex
	warm   []*Proc
	size   int
	cmd    string
	args   []string
	closed bool
	log    zerolog.Logger
}

// NewPool pre-warms size subprocesses of the given command.
func NewPool(command string, args []string, size int, log zerolog.Logger) *Pool {
	if size <= 0 {
		size = 3
	}
	p := &Pool{size: size, cmd: command, args: args, log: log}
	for i := 0; i < size; i++ {
		proc, err := p.spawn()
		if err != nil {
			log.Error().Err(err).Str("cmd", command).Msg("classifier pre-warm failed")
			break
		}
		p.warm = append(p.warm, proc)
	}
	return p
}

func (p *Pool) spawn() (*Proc, error) {
	cmd := exec.Command(p.cmd, p.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", p.cmd, err)
	}
	return &Proc{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Acquire returns a subprocess ready to run one request.
func (p *Pool) Acquire() (*Proc, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(p.warm); n > 0 {
		proc := p.warm[n-1]
		p.warm = p.warm[:n-1]
		p.mu.Unlock()
		go p.replenish()
		return proc, nil
	}
	p.mu.Unlock()

	// exhausted: spawn on demand instead of queueing the caller, and start
	// refilling the warm set in the background
	go p.replenish()
	return p.spawn()
}

func (p *Pool) replenish() {
	proc, err := p.spawn()
	if err != nil {
		p.log.Error().Err(err).Msg("classifier replenish failed")
		return
	}
	p.mu.Lock()
	full := p.closed || len(p.warm) >= p.size
	if !full {
		p.warm = append(p.warm, proc)
	}
	p.mu.Unlock()
	if full {
		proc.Kill()
	}
}

// WarmCount returns how many pre-warmed subprocesses are ready.
func (p *Pool) WarmCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.warm)
}

// Close kills all warm subprocesses.
func (p *Pool) Close() {
	p.mu.Lock()
	procs := p.warm
	p.warm = nil
	p.closed = true
	p.mu.Unlock()
	for _, proc := range procs {
		proc.Kill()
	}
}
