package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/buildout/ipc"
	"github.com/pithecene-io/buildout/iox"
)

// ErrPoolClosed is returned for units submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Conn is a connection to one worker process. Requests are written to it
// and results read from it; Close ends the worker.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Launcher starts worker processes.
type Launcher interface {
	Launch(ctx context.Context) (Conn, error)
}

// ProcessPool runs units in worker processes, one unit per worker at a
// time. Workers are launched on first use and live until Close.
type ProcessPool struct {
	ctx      context.Context
	launcher Launcher
	parallel int
	opts     poolOptions

	startOnce sync.Once
	jobs      chan processJob
	workers   sync.WaitGroup
	launched  int
	noWorkers error

	pending sync.WaitGroup
	nextID  atomic.Uint64

	mu       sync.Mutex
	firstErr error
	closed   bool
}

type processJob struct {
	req    *ipc.WorkRequest
	output string
}

// NewProcessPool creates a pool of up to parallel worker processes.
func NewProcessPool(ctx context.Context, launcher Launcher, parallel int, opts ...PoolOption) *ProcessPool {
	if parallel < 1 {
		parallel = 1
	}
	p := &ProcessPool{ctx: ctx, launcher: launcher, parallel: parallel}
	for _, opt := range opts {
		opt(&p.opts)
	}
	return p
}

func (p *ProcessPool) start() {
	p.jobs = make(chan processJob)
	var launchErr error
	for range p.parallel {
		conn, err := p.launcher.Launch(p.ctx)
		if err != nil {
			p.opts.metrics.IncWorkerLaunchFailure()
			p.opts.logger.Error("worker launch failed", map[string]any{"error": err.Error()})
			launchErr = err
			continue
		}
		p.launched++
		p.workers.Add(1)
		go p.dispatch(newProcessWorker(conn))
	}
	if p.launched == 0 {
		p.noWorkers = fmt.Errorf("no worker could be launched: %w", launchErr)
	}
}

// Submit implements Pool.
func (p *ProcessPool) Submit(unit string, params Params) {
	p.startOnce.Do(p.start)
	p.opts.metrics.IncUnitSubmitted()

	fail := func(err error) {
		p.opts.metrics.IncUnitFailed()
		p.recordErr(&UnitError{Unit: unit, Output: params.OutputPath(), Err: err})
	}

	p.mu.Lock()
	closed, failed := p.closed, p.firstErr != nil
	p.mu.Unlock()
	switch {
	case closed:
		fail(ErrPoolClosed)
		return
	case p.noWorkers != nil:
		fail(p.noWorkers)
		return
	case failed:
		return
	}

	data, err := ipc.EncodeParams(params)
	if err != nil {
		fail(fmt.Errorf("encode parameters: %w", err))
		return
	}

	req := &ipc.WorkRequest{
		Type:   ipc.WorkRequestType,
		ID:     p.nextID.Add(1),
		Unit:   unit,
		Params: data,
	}
	p.pending.Add(1)
	select {
	case p.jobs <- processJob{req: req, output: params.OutputPath()}:
	case <-p.ctx.Done():
		p.pending.Done()
		fail(p.ctx.Err())
	}
}

func (p *ProcessPool) dispatch(w *processWorker) {
	defer p.workers.Done()
	defer w.close()

	for job := range p.jobs {
		p.runJob(w, job)
		p.pending.Done()
	}
}

func (p *ProcessPool) runJob(w *processWorker, job processJob) {
	if p.failed() {
		return
	}
	if err := w.run(job.req); err != nil {
		p.opts.metrics.IncUnitFailed()
		p.opts.logger.Warn("unit failed", map[string]any{
			"unit":   job.req.Unit,
			"output": job.output,
			"error":  err.Error(),
		})
		p.recordErr(&UnitError{Unit: job.req.Unit, Output: job.output, Err: err})
		return
	}
	p.opts.metrics.IncUnitSucceeded()
}

func (p *ProcessPool) failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr != nil
}

func (p *ProcessPool) recordErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstErr == nil {
		p.firstErr = err
	}
}

// AwaitAll implements Pool.
func (p *ProcessPool) AwaitAll() error {
	p.pending.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.firstErr
	p.firstErr = nil
	return err
}

// Close shuts every worker down and waits for them to exit.
// Pending units are finished first. Close must not race with Submit.
func (p *ProcessPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.pending.Wait()
	if p.jobs != nil {
		close(p.jobs)
	}
	p.workers.Wait()
	return nil
}

// processWorker is the pool side of one worker connection.
type processWorker struct {
	conn   Conn
	enc    *ipc.FrameEncoder
	dec    *ipc.FrameDecoder
	broken error
}

func newProcessWorker(conn Conn) *processWorker {
	return &processWorker{
		conn: conn,
		enc:  ipc.NewFrameEncoder(conn),
		dec:  ipc.NewFrameDecoder(conn),
	}
}

// run sends one request and waits for its result. A protocol failure
// breaks the connection for every later request.
func (w *processWorker) run(req *ipc.WorkRequest) error {
	if w.broken != nil {
		return w.broken
	}
	if err := w.enc.WriteFrame(req); err != nil {
		w.broken = fmt.Errorf("worker connection lost: %w", err)
		return w.broken
	}
	payload, err := w.dec.ReadFrame()
	if err != nil {
		w.broken = fmt.Errorf("worker connection lost: %w", err)
		return w.broken
	}
	v, err := ipc.DecodeFrame(payload)
	if err != nil {
		w.broken = fmt.Errorf("worker protocol error: %w", err)
		return w.broken
	}
	res, ok := v.(*ipc.WorkResult)
	if !ok || res.ID != req.ID {
		w.broken = fmt.Errorf("worker protocol error: unexpected reply to request %d", req.ID)
		return w.broken
	}
	if !res.OK {
		return errors.New(res.Error)
	}
	return nil
}

func (w *processWorker) close() {
	if w.broken == nil {
		_ = w.enc.WriteFrame(&ipc.Shutdown{Type: ipc.ShutdownType})
	}
	iox.DiscardClose(w.conn)
}

// ExecLauncher launches the hidden worker subcommand of an executable.
type ExecLauncher struct {
	// Executable is the binary to run; empty means the running binary.
	Executable string
	// Args precede the worker subcommand (e.g. global flags).
	Args []string
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(ctx context.Context) (Conn, error) {
	exe := l.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		exe = self
	}

	args := append(append([]string{}, l.Args...), "worker")
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return &execConn{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type execConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (c *execConn) Read(b []byte) (int, error)  { return c.stdout.Read(b) }
func (c *execConn) Write(b []byte) (int, error) { return c.stdin.Write(b) }

// Close ends stdin and waits for the worker to exit.
func (c *execConn) Close() error {
	_ = c.stdin.Close()
	if err := c.cmd.Wait(); err != nil {
		return fmt.Errorf("worker exited: %w", err)
	}
	return nil
}
