package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// frame writes a length-prefixed payload the way the engine does on FD 3.
func frame(buf *bytes.Buffer, payload string) {
	binary.Write(buf, binary.BigEndian, uint32(len(payload)))
	buf.WriteString(payload)
}

func TestInfer(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}
	frame(dataPipeMock.Buffer, `{"prediction":"42","probability":0.93}`)

	// Cmd is nil because we aren't testing process management, just the protocol
	e := &PythonEngine{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}

	inputImage := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	p, err := e.Infer(inputImage)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	// Verify Go sent the correct data TO the engine: 4 bytes header + payload
	sent := stdinMock.Bytes()
	if len(sent) != 4+len(inputImage) {
		t.Fatalf("Expected %d bytes sent, got %d", 4+len(inputImage), len(sent))
	}
	if binary.BigEndian.Uint32(sent[:4]) != uint32(len(inputImage)) {
		t.Errorf("Length header mismatch: %X", sent[:4])
	}
	if !bytes.Equal(sent[4:], inputImage) {
		t.Errorf("Payload mismatch: %X", sent[4:])
	}

	if p.Label != "42" || p.Probability != 0.93 {
		t.Errorf("Unexpected prediction %+v", p)
	}
}

func TestInfer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(b *bytes.Buffer)
		down    bool
	}{
		{"Engine error object", func(b *bytes.Buffer) { frame(b, `{"error":"Import Error"}`) }, false},
		{"Malformed JSON", func(b *bytes.Buffer) { frame(b, `not json`) }, false},
		{"Engine died", func(b *bytes.Buffer) {}, true},
		{"Truncated body", func(b *bytes.Buffer) {
			binary.Write(b, binary.BigEndian, uint32(100))
			b.WriteString("{}")
		}, true},
		{"Oversized header", func(b *bytes.Buffer) {
			binary.Write(b, binary.BigEndian, uint32(maxResponse+1))
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &MockCloser{Buffer: new(bytes.Buffer)}
			tt.prepare(data.Buffer)
			e := &PythonEngine{ID: 1, Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: data}
			_, err := e.Infer([]byte("frame"))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if errors.Is(err, ErrEngineDown) != tt.down {
				t.Errorf("ErrEngineDown = %v, want %v (%v)", !tt.down, tt.down, err)
			}
		})
	}
}

// slowEngine counts concurrent callers to verify the pool never shares an engine.
type slowEngine struct {
	inFlight *int32
	maxSeen  *int32
	closed   atomic.Bool
}

func (s *slowEngine) Infer(image []byte) (Prediction, error) {
	n := atomic.AddInt32(s.inFlight, 1)
	for {
		m := atomic.LoadInt32(s.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(s.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(s.inFlight, -1)
	return Prediction{Label: string(image), Probability: 1}, nil
}

func (s *slowEngine) Close() error {
	s.closed.Store(true)
	return nil
}

func TestPool(t *testing.T) {
	var inFlight, maxSeen int32
	a := &slowEngine{inFlight: &inFlight, maxSeen: &maxSeen}
	b := &slowEngine{inFlight: &inFlight, maxSeen: &maxSeen}
	pool := NewPool(nil, a, b)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := pool.Infer(context.Background(), []byte("7"))
			if err != nil || p.Label != "7" {
				t.Errorf("Infer = %+v, %v", p, err)
			}
		}()
	}
	wg.Wait()

	if maxSeen > 2 {
		t.Errorf("Pool of 2 engines served %d requests at once", maxSeen)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !a.closed.Load() || !b.closed.Load() {
		t.Error("Expected every engine to be closed")
	}
	if _, err := pool.Infer(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}

func TestPoolRespectsContext(t *testing.T) {
	pool := NewPool(nil) // no engines: every borrow blocks
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Infer(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

// oneShotEngine answers `replies` requests and then behaves like an exited process.
type oneShotEngine struct {
	id      int
	replies int
	closed  atomic.Bool
}

func (o *oneShotEngine) Infer([]byte) (Prediction, error) {
	if o.replies == 0 {
		return Prediction{}, fmt.Errorf("engine %d: %w: EOF", o.id, ErrEngineDown)
	}
	o.replies--
	return Prediction{Label: fmt.Sprint(o.id), Probability: 0.9}, nil
}

func (o *oneShotEngine) Close() error {
	o.closed.Store(true)
	return nil
}

func TestPoolReplacesDeadEngine(t *testing.T) {
	first := &oneShotEngine{replies: 1}
	var started []*oneShotEngine
	restart := func(id int) (Inferer, error) {
		e := &oneShotEngine{id: len(started) + 1, replies: 1}
		started = append(started, e)
		return e, nil
	}
	pool := NewPool(restart, first)
	ctx := context.Background()

	if p, err := pool.Infer(ctx, nil); err != nil || p.Label != "0" {
		t.Fatalf("First request = %+v, %v", p, err)
	}
	if _, err := pool.Infer(ctx, nil); !errors.Is(err, ErrEngineDown) {
		t.Fatalf("Expected the dead engine's error to surface once, got %v", err)
	}
	if !first.closed.Load() || len(started) != 1 {
		t.Fatalf("Expected dead engine closed and one replacement, got closed=%v started=%d", first.closed.Load(), len(started))
	}
	if !pool.Healthy() {
		t.Error("Pool should be healthy after a successful restart")
	}
	if p, err := pool.Infer(ctx, nil); err != nil || p.Label != "1" {
		t.Errorf("Replacement should serve the next request, got %+v, %v", p, err)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !started[0].closed.Load() {
		t.Error("Close should stop the replacement engine")
	}
}

func TestPoolRetriesFailedRestart(t *testing.T) {
	attempts := 0
	restart := func(id int) (Inferer, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("model file missing")
		}
		return &oneShotEngine{id: 7, replies: 1}, nil
	}
	pool := NewPool(restart, &oneShotEngine{})
	ctx := context.Background()

	if _, err := pool.Infer(ctx, nil); err == nil {
		t.Fatal("Expected error from dead engine")
	}
	if pool.Healthy() {
		t.Error("Pool with a failed restart should report unhealthy")
	}
	if p, err := pool.Infer(ctx, nil); err != nil || p.Label != "7" {
		t.Errorf("Expected restart on next borrow, got %+v, %v", p, err)
	}
	if attempts != 2 || !pool.Healthy() {
		t.Errorf("Expected 2 restart attempts and a healthy pool, got %d, %v", attempts, pool.Healthy())
	}
	if err := pool.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

// replyOnce reads one framed request, answers on FD 3 and exits.
const replyOnce = `import json, os, struct, sys
n = struct.unpack(">I", sys.stdin.buffer.read(4))[0]
sys.stdin.buffer.read(n)
body = json.dumps({"prediction": "42", "probability": 0.9}).encode()
out = os.fdopen(3, "wb")
out.write(struct.pack(">I", len(body)) + body)
out.flush()
`

func TestPoolRestartsExitedProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping engine process test in short mode")
	}
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	script := filepath.Join(t.TempDir(), "once.py")
	if err := os.WriteFile(script, []byte(replyOnce), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	first, err := NewPythonEngine(ctx, 0, script, "unused.pb")
	if err != nil {
		t.Fatal(err)
	}
	pool := NewPool(func(id int) (Inferer, error) {
		return NewPythonEngine(ctx, id, script, "unused.pb")
	}, first)
	defer pool.Close()

	if p, err := pool.Infer(ctx, []byte("png")); err != nil || p.Label != "42" {
		t.Fatalf("First request = %+v, %v", p, err)
	}
	if _, err := pool.Infer(ctx, []byte("png")); !errors.Is(err, ErrEngineDown) {
		t.Fatalf("Expected ErrEngineDown from exited engine, got %v", err)
	}
	if p, err := pool.Infer(ctx, []byte("png")); err != nil || p.Label != "42" {
		t.Errorf("Restarted engine should answer, got %+v, %v", p, err)
	}
}
