package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/prospect-cadence/internal/config"
	"github.com/ignite/prospect-cadence/internal/queue"
)

// Periodic task names.
const (
	TaskFeed   = "feed"
	TaskReset  = "reset"
	TaskWarmup = "warmup"
	TaskHealth = "health"
)

// TaskFunc runs one periodic task.
type TaskFunc func(ctx context.Context) error

// Orchestrator fires periodic ticks on cron schedules. A tick does not run
// its task inline: it emits a TickJob on the scheduler-ticks queue, and
// HandleTick runs the task when the job is consumed. A task that is still
// running when its next tick arrives skips that tick.
type Orchestrator struct {
	cron  *cron.Cron
	queue queue.Queue
	specs map[string]string
	tasks map[string]TaskFunc

	mu      sync.Mutex
	running map[string]bool
}

// NewOrchestrator creates an orchestrator for the given task set. Tasks
// without a function are not scheduled.
func NewOrchestrator(q queue.Queue, schedules config.SchedulesConfig, tasks map[string]TaskFunc) *Orchestrator {
	return &Orchestrator{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		queue: q,
		specs: map[string]string{
			TaskFeed:   schedules.Feed,
			TaskReset:  schedules.Reset,
			TaskWarmup: schedules.Warmup,
			TaskHealth: schedules.Health,
		},
		tasks:   tasks,
		running: make(map[string]bool),
	}
}

// Start registers every cron entry and starts the scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	for name, spec := range o.specs {
		if _, ok := o.tasks[name]; !ok || spec == "" {
			continue
		}
		name := name
		if _, err := o.cron.AddFunc(spec, func() { o.emit(ctx, name) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
		}
		log.Printf("[Orchestrator] Scheduled %s at %q", name, spec)
	}
	o.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running entries.
func (o *Orchestrator) Stop() {
	<-o.cron.Stop().Done()
	log.Printf("[Orchestrator] Stopped")
}

// Trigger emits a tick for name immediately.
func (o *Orchestrator) Trigger(ctx context.Context, name string) error {
	if _, ok := o.tasks[name]; !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	_, err := o.queue.Enqueue(ctx, queue.SchedulerTicks, KindTick, TickJob{Task: name, At: time.Now()}, 0)
	return err
}

func (o *Orchestrator) emit(ctx context.Context, name string) {
	if err := o.Trigger(ctx, name); err != nil {
		log.Printf("[Orchestrator] Failed to emit %s tick: %v", name, err)
	}
}

// HandleTick is the queue handler for the scheduler-ticks queue.
func (o *Orchestrator) HandleTick(ctx context.Context, job *queue.Job) error {
	var tick TickJob
	if err := job.Decode(&tick); err != nil {
		return err
	}
	task, ok := o.tasks[tick.Task]
	if !ok {
		return fmt.Errorf("unknown task %q", tick.Task)
	}

	o.mu.Lock()
	if o.running[tick.Task] {
		o.mu.Unlock()
		log.Printf("[Orchestrator] %s still running, tick skipped", tick.Task)
		return nil
	}
	o.running[tick.Task] = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.running, tick.Task)
		o.mu.Unlock()
	}()

	start := time.Now()
	if err := task(ctx); err != nil {
		return fmt.Errorf("task %s: %w", tick.Task, err)
	}
	log.Printf("[Orchestrator] %s finished in %s", tick.Task, time.Since(start).Round(time.Millisecond))
	return nil
}
