package jobtracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siftworks/siftx/pkg/sifter"
)

// PoolConfig configures the in-process worker pool.
type PoolConfig struct {
	// Workers is the number of concurrent sifter executions. Default: 4.
	Workers int

	// QueueSize is the pending-task buffer. Enqueue fails once the buffer
	// is full rather than blocking the submitting request. Default: 64.
	QueueSize int

	// OnComplete, when set, is called after each task finishes with the
	// pool state and result payload. Used for metrics.
	OnComplete func(state State, result *Result)
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 4, QueueSize: 64}
}

type queuedTask struct {
	id   string
	task Task
}

// Pool is the bundled in-process Dispatcher implementation.
//
// Workers execute sifters on a background context decoupled from the
// lifetime of the request that submitted them. A task whose sifter fails
// still completes with StateSuccess and a failed result payload; only an
// unexpected worker fault reports StateFailure.
type Pool struct {
	engine     *sifter.Engine
	logger     *zap.Logger
	onComplete func(state State, result *Result)

	tasks chan queuedTask
	wg    sync.WaitGroup

	mu      sync.RWMutex
	states  map[string]State
	results map[string]*Result
	closed  bool
}

var _ Dispatcher = (*Pool)(nil)

// NewPool creates and starts a worker pool executing on the given engine.
func NewPool(engine *sifter.Engine, cfg PoolConfig, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPoolConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultPoolConfig().QueueSize
	}
	p := &Pool{
		engine:     engine,
		logger:     logger,
		onComplete: cfg.OnComplete,
		tasks:      make(chan queuedTask, cfg.QueueSize),
		states:     make(map[string]State),
		results:    make(map[string]*Result),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Enqueue implements Dispatcher.
func (p *Pool) Enqueue(ctx context.Context, task Task) (string, error) {
	id := uuid.New().String()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", fmt.Errorf("worker pool is shut down")
	}
	p.states[id] = StatePending
	p.mu.Unlock()

	select {
	case p.tasks <- queuedTask{id: id, task: task}:
		return id, nil
	case <-ctx.Done():
		p.forget(id)
		return "", ctx.Err()
	default:
		p.forget(id)
		return "", fmt.Errorf("worker pool queue is full")
	}
}

// Poll implements Dispatcher.
func (p *Pool) Poll(id string) (State, *Result) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.states[id]
	if !ok {
		return StatePending, nil
	}
	return state, p.results[id]
}

// Close stops accepting work and waits for in-flight tasks to finish.
// A hung sifter blocks shutdown until its process exits.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for qt := range p.tasks {
		p.execute(qt)
	}
}

func (p *Pool) execute(qt queuedTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic",
				zap.String("task_id", qt.id),
				zap.Any("panic", r))
			p.complete(qt.id, StateFailure, &Result{
				Success: false,
				Sifter:  qt.task.SifterName,
				Error:   fmt.Sprintf("worker panic: %v", r),
			})
		}
	}()

	result := &Result{Success: true, Sifter: qt.task.SifterName}
	artifact, err := p.engine.Run(context.Background(), qt.task.SifterPath, qt.task.CourseID, qt.task.ExtraArgs)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	} else if artifact != nil {
		result.Artifact = artifact.Filename
	}

	p.complete(qt.id, StateSuccess, result)
}

func (p *Pool) complete(id string, state State, result *Result) {
	p.mu.Lock()
	p.states[id] = state
	p.results[id] = result
	p.mu.Unlock()

	if p.onComplete != nil {
		p.onComplete(state, result)
	}
}

func (p *Pool) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, id)
}
