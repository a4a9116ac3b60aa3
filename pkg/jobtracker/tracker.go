package jobtracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of work handed to the dispatcher.
type Task struct {
	// SifterName is the registry name of the sifter.
	SifterName string

	// SifterPath is the resolved executable path.
	SifterPath string

	// CourseID is the course scope the sifter runs against.
	CourseID string

	// ExtraArgs are appended to the sifter's positional arguments.
	ExtraArgs []string
}

// Dispatcher is the worker-pool contract: enqueue a task, poll its state,
// receive its result. The pool may be in-process or an external broker.
type Dispatcher interface {
	// Enqueue hands the task to the pool and returns its id immediately.
	Enqueue(ctx context.Context, task Task) (string, error)

	// Poll returns the pool's view of the task and, once complete, its
	// result payload. Unknown ids report StatePending: the pool may not
	// have observed the task yet.
	Poll(id string) (State, *Result)
}

// JobList is the per-session list of tracked jobs. Mutations are
// serialized internally so sessions shared across concurrent requests
// cannot lose updates.
type JobList struct {
	mu   sync.Mutex
	jobs []*Job
}

// NewJobList creates an empty job list.
func NewJobList() *JobList {
	return &JobList{}
}

// Append adds a job to the visible list.
func (l *JobList) Append(job *Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, job)
}

// QueryAll returns a snapshot of every tracked job.
func (l *JobList) QueryAll() []Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Job, 0, len(l.jobs))
	for _, job := range l.jobs {
		out = append(out, *job)
	}
	return out
}

// FilterOutTerminal removes jobs whose status is terminal from the visible
// list. This is a client-side filter only: the dispatcher keeps whatever
// record of the job it has.
func (l *JobList) FilterOutTerminal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.jobs[:0]
	for _, job := range l.jobs {
		if !job.Status.Terminal() {
			kept = append(kept, job)
		}
	}
	l.jobs = kept
}

// refresh applies resolve to every non-terminal job. Terminal jobs are
// never touched, which keeps status transitions monotonic.
func (l *JobList) refresh(resolve func(id string) (Status, *Result)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, job := range l.jobs {
		if job.Status.Terminal() {
			continue
		}
		status, result := resolve(job.ID)
		job.Status = status
		if result != nil {
			job.Result = result
		}
	}
}

// Tracker wraps a dispatcher with job lifecycle bookkeeping.
type Tracker struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewTracker creates a tracker over the given dispatcher.
func NewTracker(d Dispatcher, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{dispatcher: d, logger: logger}
}

// Submit enqueues the task and appends a PENDING job to the list.
func (t *Tracker) Submit(ctx context.Context, list *JobList, task Task) (*Job, error) {
	id, err := t.dispatcher.Enqueue(ctx, task)
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:          id,
		Sifter:      task.SifterName,
		CourseID:    task.CourseID,
		ExtraArgs:   task.ExtraArgs,
		SubmittedAt: time.Now().UTC(),
		Status:      StatusPending,
	}
	list.Append(job)
	t.logger.Info("job submitted",
		zap.String("task_id", id),
		zap.String("sifter", task.SifterName),
		zap.String("course_id", task.CourseID))
	return job, nil
}

// Query refreshes every non-terminal job in the list from the dispatcher
// and returns the full snapshot.
func (t *Tracker) Query(list *JobList) []Job {
	list.refresh(t.resolve)
	return list.QueryAll()
}

// Clear refreshes the list, drops jobs whose status is terminal from the
// visible list, and returns what remains.
func (t *Tracker) Clear(list *JobList) []Job {
	list.refresh(t.resolve)
	list.FilterOutTerminal()
	return list.QueryAll()
}

// resolve maps the dispatcher's state onto the caller-visible status. A
// task the worker completed but whose payload reports failure is
// reclassified as SIFTER_FAILURE.
func (t *Tracker) resolve(id string) (Status, *Result) {
	state, result := t.dispatcher.Poll(id)
	switch state {
	case StateSuccess:
		if result != nil && !result.Success {
			return StatusSifterFailure, result
		}
		return StatusSuccess, result
	case StateFailure:
		return StatusFailure, result
	default:
		return StatusPending, nil
	}
}
