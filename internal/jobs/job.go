// Package jobs runs the periodic work of the alerting pipeline: rule
// evaluation, heuristic detection, notification delivery and cleanup.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/nexusdash/nexus/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Result describes one execution of a job.
type Result struct {
	Job            string        `json:"job"`
	Success        bool          `json:"success"`
	AlreadyRunning bool          `json:"already_running"`
	Processed      int           `json:"processed"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Retried        int           `json:"retried"`
	AlertsCreated  int           `json:"alerts_created"`
	Errors         []string      `json:"errors,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

type Status struct {
	Name      string        `json:"name"`
	Running   bool          `json:"running"`
	Scheduled bool          `json:"scheduled"`
	Interval  time.Duration `json:"interval"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	LastRun   *Result       `json:"last_run,omitempty"`
}

// Handle identifies a running schedule.
type Handle struct {
	Interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

type Job interface {
	Name() string
	Execute(ctx context.Context) Result
	Status() Status
	StartScheduler(interval time.Duration) *Handle
	StopScheduler(h *Handle)
}

// runner carries the bookkeeping every job shares: mutual exclusion,
// status, metrics and the ticker loop. Concrete jobs embed it and supply
// the work function.
type runner struct {
	name string
	lock Lock
	work func(ctx context.Context, r *Result) error
	now  func() time.Time

	mutex    sync.Mutex
	running  bool
	handle   *Handle
	runs     int
	failures int
	last     *Result
}

func newRunner(name string, lock Lock, work func(context.Context, *Result) error) *runner {
	if lock == nil {
		lock = NewLocalLock()
	}
	return &runner{
		name: name,
		lock: lock,
		work: work,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *runner) Name() string {
	return r.name
}

// Execute runs the job once. When another execution holds the lock it
// returns immediately with AlreadyRunning set. A run is never cut short:
// cancelling ctx after Execute starts does not reach the work function.
func (r *runner) Execute(ctx context.Context) Result {
	ctx = context.WithoutCancel(ctx)
	result := Result{Job: r.name, StartedAt: r.now()}

	acquired, err := r.lock.TryLock(ctx, r.name)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		r.finish(&result)
		return result
	}
	if !acquired {
		result.AlreadyRunning = true
		metrics.JobRuns.WithLabelValues(r.name, "skipped").Inc()
		logrus.WithField("job", r.name).Debug("Job already running, skipping")
		return result
	}
	defer func() {
		if err := r.lock.Unlock(context.Background(), r.name); err != nil {
			logrus.WithField("job", r.name).WithError(err).Warn("Failed to release job lock")
		}
	}()

	r.setRunning(true)
	defer r.setRunning(false)

	if err := r.work(ctx, &result); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	r.finish(&result)
	return result
}

func (r *runner) finish(result *Result) {
	result.Duration = r.now().Sub(result.StartedAt)
	result.Success = len(result.Errors) == 0

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.JobRuns.WithLabelValues(r.name, outcome).Inc()
	metrics.JobDuration.WithLabelValues(r.name).Observe(result.Duration.Seconds())

	r.mutex.Lock()
	r.runs++
	if !result.Success {
		r.failures++
	}
	last := *result
	r.last = &last
	r.mutex.Unlock()

	entry := logrus.WithFields(logrus.Fields{
		"job":            r.name,
		"processed":      result.Processed,
		"succeeded":      result.Succeeded,
		"failed":         result.Failed,
		"alerts_created": result.AlertsCreated,
		"duration":       result.Duration,
	})
	if result.Success {
		entry.Info("Job completed")
	} else {
		entry.WithField("errors", result.Errors).Warn("Job completed with errors")
	}
}

func (r *runner) setRunning(v bool) {
	r.mutex.Lock()
	r.running = v
	r.mutex.Unlock()
}

func (r *runner) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s := Status{
		Name:     r.name,
		Running:  r.running,
		Runs:     r.runs,
		Failures: r.failures,
		LastRun:  r.last,
	}
	if r.handle != nil {
		s.Scheduled = true
		s.Interval = r.handle.Interval
	}
	return s
}

// StartScheduler runs the job every interval until StopScheduler is called.
// Starting an already scheduled job returns the existing handle.
func (r *runner) StartScheduler(interval time.Duration) *Handle {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.handle != nil {
		return r.handle
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{Interval: interval, cancel: cancel, done: make(chan struct{})}
	r.handle = h

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				r.Execute(ctx)
			}
		}
	}()

	logrus.WithFields(logrus.Fields{
		"job":      r.name,
		"interval": interval,
	}).Info("Job scheduler started")
	return h
}

// StopScheduler stops the schedule and waits for an in-flight run to end.
func (r *runner) StopScheduler(h *Handle) {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done

	r.mutex.Lock()
	if r.handle == h {
		r.handle = nil
	}
	r.mutex.Unlock()
	logrus.WithField("job", r.name).Info("Job scheduler stopped")
}
