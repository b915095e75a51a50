package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/multierr"

	"github.com/andresmejia3/rotisserie/internal/utils" // Using the SafeCommand wrapper
)

// maxResponse guards against a corrupted length header allocating gigabytes.
const maxResponse = 1 << 20

// ErrClosed is returned by a pool that has been shut down.
var ErrClosed = errors.New("engine pool closed")

// ErrEngineDown wraps pipe failures. The process is gone or out of sync and must be replaced.
var ErrEngineDown = errors.New("engine down")

// Prediction matches the JSON object the inference engine writes back per image.
type Prediction struct {
	Label       string  `json:"prediction"`
	Probability float64 `json:"probability"`
	Error       string  `json:"error,omitempty"`
}

// PythonEngine is one long-lived inference process holding a loaded classification graph.
type PythonEngine struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu sync.Mutex // one request in flight per process
}

// NewPythonEngine starts `python3 -u <script> --model <modelPath>` and wires the data channel.
func NewPythonEngine(ctx context.Context, id int, script, modelPath string) (*PythonEngine, error) {
	py := utils.NewSafeCommand(ctx, "python3", "-u", script, "--model", modelPath)

	// Create a side-channel pipe (FD 3) so engine logs on stdout/stderr never corrupt frames
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("engine %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonEngine{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate performs one framed request/response exchange.
func (e *PythonEngine) Communicate(data []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Protocol: [Length][Data]
	if err := binary.Write(e.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := e.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(e.DataPipe, header); err != nil {
		return nil, err // the engine died (bad model path, import error)
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("engine response too large: %d bytes", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(e.DataPipe, respBody)
	return respBody, err
}

// Infer sends image bytes and decodes the engine's prediction.
func (e *PythonEngine) Infer(image []byte) (Prediction, error) {
	resp, err := e.Communicate(image)
	if err != nil {
		return Prediction{}, fmt.Errorf("engine %d: %w: %w", e.ID, ErrEngineDown, err)
	}

	var p Prediction
	if err := json.Unmarshal(resp, &p); err != nil {
		return Prediction{}, fmt.Errorf("engine %d returned malformed JSON: %w", e.ID, err)
	}
	if p.Error != "" {
		return Prediction{}, fmt.Errorf("engine %d error: %s", e.ID, p.Error)
	}
	return p, nil
}

// Close stops the engine and reaps the process.
func (e *PythonEngine) Close() error {
	e.Stdin.Close()
	e.DataPipe.Close()
	if e.Cmd != nil {
		return e.Cmd.Wait()
	}
	return nil
}

// Inferer is satisfied by PythonEngine and by in-memory fakes.
type Inferer interface {
	Infer(image []byte) (Prediction, error)
	Close() error
}

// Restarter starts a replacement for engine id.
type Restarter func(id int) (Inferer, error)

type slot struct {
	id   int
	e    Inferer
	dead bool // closed and not yet replaced
}

// Pool hands engines out to concurrent callers.
type Pool struct {
	engines chan *slot
	all     []*slot
	restart Restarter
	mu      sync.Mutex // guards slot engines against Close
	once    sync.Once
	done    chan struct{}
}

// NewPool wraps already started engines. restart may be nil, in which case a failed
// engine stays in the pool.
func NewPool(restart Restarter, engines ...Inferer) *Pool {
	p := &Pool{
		engines: make(chan *slot, len(engines)),
		restart: restart,
		done:    make(chan struct{}),
	}
	for i, e := range engines {
		s := &slot{id: i, e: e}
		p.all = append(p.all, s)
		p.engines <- s
	}
	return p
}

// Infer borrows an engine for one request, waiting until one is free. An engine that
// fails with ErrEngineDown is replaced before it goes back to the pool.
func (p *Pool) Infer(ctx context.Context, image []byte) (Prediction, error) {
	select {
	case <-p.done:
		return Prediction{}, ErrClosed
	default:
	}

	var s *slot
	select {
	case s = <-p.engines:
	case <-p.done:
		return Prediction{}, ErrClosed
	case <-ctx.Done():
		return Prediction{}, ctx.Err()
	}
	defer func() { p.engines <- s }()

	if s.dead {
		if err := p.replace(s); err != nil {
			return Prediction{}, err
		}
	}
	pred, err := s.e.Infer(image)
	if errors.Is(err, ErrEngineDown) && p.restart != nil {
		err = multierr.Append(err, p.replace(s))
	}
	return pred, err
}

// replace closes the engine in s and starts a new one in its place.
func (p *Pool) replace(s *slot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	if !s.dead {
		s.e.Close() // reaps the exited process; its exit status is expected to be an error
		s.dead = true
	}
	e, err := p.restart(s.id)
	if err != nil {
		return fmt.Errorf("restarting engine %d: %w", s.id, err)
	}
	s.e, s.dead = e, false
	return nil
}

// Healthy reports whether every engine is running.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.all {
		if s.dead {
			return false
		}
	}
	return true
}

// Close shuts every engine down. In-flight requests must finish first.
func (p *Pool) Close() (err error) {
	p.once.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		close(p.done)
		for _, s := range p.all {
			if !s.dead {
				err = multierr.Append(err, s.e.Close())
			}
		}
	})
	return err
}
