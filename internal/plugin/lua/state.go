package lua

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Default limits for Lua state.
const (
	DefaultExecutionTimeout = 5 * time.Second // Per call, enforced through the LState context
	DefaultQueueSize        = 64
)

// State is a sandboxed Lua runtime with its own executor goroutine.
//
// All access to L goes through Execute or ExecuteAsync. Touching L from any
// other goroutine is a data race.
type State struct {
	L *lua.LState

	exec    *Executor
	sandbox *Sandbox
	cancel  context.CancelFunc

	executionTimeout time.Duration
	queueSize        int
	logger           *slog.Logger

	closeOnce sync.Once
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout bounds every call made through the state.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		if d > 0 {
			s.executionTimeout = d
		}
	}
}

// WithQueueSize sets the executor queue size.
func WithQueueSize(n int) StateOption {
	return func(s *State) {
		s.queueSize = n
	}
}

// WithStateLogger sets the logger receiving Lua print output and async errors.
func WithStateLogger(l *slog.Logger) StateOption {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewState creates a sandboxed Lua state and starts its executor.
func NewState(opts ...StateOption) (*State, error) {
	s := &State{
		executionTimeout: DefaultExecutionTimeout,
		queueSize:        DefaultQueueSize,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if err := openSafeLibraries(L); err != nil {
		L.Close()
		return nil, err
	}
	s.L = L
	s.sandbox = NewSandbox(L, s.logger)
	s.sandbox.Install()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.exec = NewExecutor(L, s.queueSize)
	go s.exec.Run(ctx)

	return s, nil
}

// openSafeLibraries opens only safe Lua standard libraries.
// io, debug and package are never opened; os is trimmed by the sandbox.
func openSafeLibraries(L *lua.LState) error {
	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.OsLibName, lua.OpenOs},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			return fmt.Errorf("open %s library: %w", lib.name, err)
		}
	}
	return nil
}

// Execute runs fn on the executor with the execution timeout applied to the
// Lua VM.
func (s *State) Execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.executionTimeout)
	defer cancel()

	return s.exec.Execute(ctx, func(L *lua.LState) error {
		L.SetContext(ctx)
		defer L.RemoveContext()
		return fn(L)
	})
}

// ExecuteAsync queues fn without waiting. Errors are logged at debug level.
func (s *State) ExecuteAsync(fn func(L *lua.LState) error) error {
	return s.exec.ExecuteAsync(func(L *lua.LState) error {
		ctx, cancel := context.WithTimeout(context.Background(), s.executionTimeout)
		defer cancel()
		L.SetContext(ctx)
		defer L.RemoveContext()

		if err := fn(L); err != nil {
			s.logger.Debug("Lua async call failed.", "error", err)
		}
		return nil
	})
}

// DoChunk compiles and runs code, returning its first result.
// The name is used in Lua error messages.
func (s *State) DoChunk(ctx context.Context, name, code string) (lua.LValue, error) {
	var ret lua.LValue = lua.LNil
	err := s.Execute(ctx, func(L *lua.LState) error {
		fn, err := L.Load(strings.NewReader(code), name)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCompile, err)
		}
		L.Push(fn)
		if err := L.PCall(0, 1, nil); err != nil {
			return err
		}
		ret = L.Get(-1)
		L.Pop(1)
		return nil
	})
	return ret, err
}

// Sandbox returns the sandbox installed on the state.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// Executor returns the state's executor.
func (s *State) Executor() *Executor {
	return s.exec
}

// Close stops the executor and releases the Lua state. It is safe to call
// more than once.
func (s *State) Close() error {
	s.closeOnce.Do(func() {
		s.exec.Close()
		s.cancel()
		s.exec.Wait()
		s.L.Close()
	})
	return nil
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	return s.exec.IsClosed()
}
