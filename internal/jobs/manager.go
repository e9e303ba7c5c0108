package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultEvaluationInterval = time.Minute
	DefaultDeliveryInterval   = 2 * time.Minute
	DefaultCleanupInterval    = 24 * time.Hour
	DefaultHeuristicInterval  = 15 * time.Minute
)

// DefaultIntervals maps each built-in job to its schedule.
func DefaultIntervals() map[string]time.Duration {
	return map[string]time.Duration{
		EvaluationJobName: DefaultEvaluationInterval,
		DeliveryJobName:   DefaultDeliveryInterval,
		CleanupJobName:    DefaultCleanupInterval,
		HeuristicJobName:  DefaultHeuristicInterval,
	}
}

// ErrUnknownJob is returned for a job name that was never registered.
type ErrUnknownJob string

func (e ErrUnknownJob) Error() string {
	return fmt.Sprintf("unknown job: %s", string(e))
}

// Manager owns the registered jobs and their schedules.
type Manager struct {
	mutex     sync.Mutex
	jobs      map[string]Job
	order     []string
	intervals map[string]time.Duration
	handles   map[string]*Handle
}

func NewManager(intervals map[string]time.Duration) *Manager {
	merged := DefaultIntervals()
	for name, d := range intervals {
		if d > 0 {
			merged[name] = d
		}
	}
	return &Manager{
		jobs:      make(map[string]Job),
		intervals: merged,
		handles:   make(map[string]*Handle),
	}
}

func (m *Manager) Register(job Job) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.jobs[job.Name()]; !exists {
		m.order = append(m.order, job.Name())
	}
	m.jobs[job.Name()] = job
}

func (m *Manager) interval(name string) time.Duration {
	if d, ok := m.intervals[name]; ok && d > 0 {
		return d
	}
	return time.Minute
}

func (m *Manager) Start(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.startLocked(name)
}

func (m *Manager) startLocked(name string) error {
	job, ok := m.jobs[name]
	if !ok {
		return ErrUnknownJob(name)
	}
	if _, running := m.handles[name]; running {
		return nil
	}
	m.handles[name] = job.StartScheduler(m.interval(name))
	return nil
}

func (m *Manager) Stop(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.stopLocked(name)
}

func (m *Manager) stopLocked(name string) error {
	job, ok := m.jobs[name]
	if !ok {
		return ErrUnknownJob(name)
	}
	if h, running := m.handles[name]; running {
		job.StopScheduler(h)
		delete(m.handles, name)
	}
	return nil
}

func (m *Manager) StartAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, name := range m.order {
		_ = m.startLocked(name)
	}
	logrus.WithField("jobs", len(m.order)).Info("Background jobs started")
}

func (m *Manager) StopAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, name := range m.order {
		_ = m.stopLocked(name)
	}
	logrus.Info("Background jobs stopped")
}

func (m *Manager) RestartAll() {
	m.StopAll()
	m.StartAll()
}

// Restart stops and starts one job's schedule.
func (m *Manager) Restart(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.stopLocked(name); err != nil {
		return err
	}
	return m.startLocked(name)
}

// Status lists every job in registration order.
func (m *Manager) Status() []Status {
	m.mutex.Lock()
	jobs := make([]Job, 0, len(m.order))
	for _, name := range m.order {
		jobs = append(jobs, m.jobs[name])
	}
	m.mutex.Unlock()

	statuses := make([]Status, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, job.Status())
	}
	return statuses
}

// Run executes a job immediately, outside its schedule.
func (m *Manager) Run(ctx context.Context, name string) (Result, error) {
	m.mutex.Lock()
	job, ok := m.jobs[name]
	m.mutex.Unlock()
	if !ok {
		return Result{}, ErrUnknownJob(name)
	}
	return job.Execute(ctx), nil
}
