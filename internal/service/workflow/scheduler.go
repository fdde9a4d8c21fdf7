// Package workflow — scheduler.go implements the process-wide trigger
// scheduler: it scans a workflow's ScheduleTrigger nodes and installs a
// cron entry or fixed-interval ticker for each, dispatching engine.Run on
// every fire.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowloom/loom/internal/service"
	"github.com/robfig/cron/v3"
)

// intervalUnit scales interval_minutes into a time.Duration. Tests shrink
// this to a few milliseconds so interval-accuracy assertions (S5) run in
// well under a second instead of literal minutes.
var intervalUnit = time.Minute

// job is the scheduler's record of one registered ScheduleTrigger: enough
// to re-run its owning workflow on every fire without a storage lookup.
type job struct {
	workflowID  string
	triggerName string
	graph       service.WorkflowGraph
	fireLock    sync.Mutex
	cronEntryID cron.EntryID // zero value unless this is a cron job
	isCron      bool
}

// Scheduler fires ScheduleTrigger nodes on their configured cron or
// fixed-interval schedule. Manual triggers are never registered here;
// those only fire via an explicit engine.Run call from the HTTP layer.
type Scheduler struct {
	engine *Engine
	logger *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	jobs    map[string]*job         // job ID -> registration
	tickers map[string]*time.Ticker // job ID -> interval ticker, stopped on Shutdown

	runCtx context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a Scheduler that dispatches fires through engine,
// logging each run with logger.
func NewScheduler(engine *Engine, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		engine:  engine,
		logger:  logger,
		cron:    cron.New(), // standard 5-field parser; cron.WithSeconds() deliberately not set
		jobs:    make(map[string]*job),
		tickers: make(map[string]*time.Ticker),
	}
}

// RegisterWorkflow scans workflow's nodes for ScheduleTrigger nodes and
// installs a cron entry or ticker for each, under job ID
// "{workflow.name}-{trigger.name}". Returns *SchedulerError on a duplicate
// job ID or an unparseable cron expression/timezone.
func (s *Scheduler) RegisterWorkflow(workflow *service.Workflow) error {
	nodes, err := Build(workflow.Graph)
	if err != nil {
		return &SchedulerError{Workflow: workflow.Name, Reason: "build workflow graph", Cause: err}
	}

	triggerSet := make(map[string]bool, len(workflow.Graph.Triggers))
	for _, t := range workflow.Graph.Triggers {
		triggerSet[t] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range workflow.Graph.Nodes {
		if !triggerSet[n.Name] {
			continue
		}

		src, ok := nodes[n.Name].(ScheduleSource)
		if !ok {
			continue
		}

		jobID := workflow.Name + "-" + n.Name
		if _, dup := s.jobs[jobID]; dup {
			return &SchedulerError{Workflow: workflow.Name, Trigger: n.Name, Reason: "trigger already registered"}
		}

		j := &job{workflowID: workflow.ID, triggerName: n.Name, graph: workflow.Graph}

		if err := s.install(jobID, j, src); err != nil {
			return err
		}

		s.jobs[jobID] = j
	}

	return nil
}

// RegisterTrigger installs a single named ScheduleTrigger node from workflow,
// without touching any of the workflow's other triggers. Used by the HTTP
// layer when a trigger node is added to an already-registered workflow.
func (s *Scheduler) RegisterTrigger(workflow *service.Workflow, triggerName string) error {
	nodes, err := Build(workflow.Graph)
	if err != nil {
		return &SchedulerError{Workflow: workflow.Name, Trigger: triggerName, Reason: "build workflow graph", Cause: err}
	}

	node, ok := nodes[triggerName]
	if !ok {
		return &SchedulerError{Workflow: workflow.Name, Trigger: triggerName, Reason: "trigger not found in workflow"}
	}

	src, ok := node.(ScheduleSource)
	if !ok {
		// Not a schedule trigger (e.g. manual) — nothing for the scheduler to do.
		return nil
	}

	jobID := workflow.Name + "-" + triggerName

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[jobID]; dup {
		return &SchedulerError{Workflow: workflow.Name, Trigger: triggerName, Reason: "trigger already registered"}
	}

	j := &job{workflowID: workflow.ID, triggerName: triggerName, graph: workflow.Graph}
	if err := s.install(jobID, j, src); err != nil {
		return err
	}
	s.jobs[jobID] = j

	return nil
}

// UnregisterTrigger removes a previously-registered ScheduleTrigger job,
// stopping its cron entry or ticker. A no-op if the trigger was never
// registered (e.g. it was a manual trigger).
func (s *Scheduler) UnregisterTrigger(workflowName, triggerName string) {
	jobID := workflowName + "-" + triggerName

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return
	}

	if j.isCron {
		s.cron.Remove(j.cronEntryID)
	}
	if t, ok := s.tickers[jobID]; ok {
		t.Stop()
		delete(s.tickers, jobID)
	}
	delete(s.jobs, jobID)
}

// install adds a cron entry or starts a ticker for one ScheduleTrigger,
// depending on its configured schedule type.
func (s *Scheduler) install(jobID string, j *job, src ScheduleSource) error {
	switch src.ScheduleType() {
	case "cron":
		loc, err := time.LoadLocation(src.Timezone())
		if err != nil {
			return &SchedulerError{Workflow: j.workflowID, Trigger: j.triggerName, Reason: "invalid timezone", Cause: err}
		}

		schedule, err := cron.ParseStandard(src.CronExpression())
		if err != nil {
			return &SchedulerError{Workflow: j.workflowID, Trigger: j.triggerName, Reason: "invalid cron expression", Cause: err}
		}

		j.isCron = true
		j.cronEntryID = s.cron.Schedule(inLocation{schedule, loc}, cron.FuncJob(func() {
			s.runWorkflow(jobID, j)
		}))

	case "interval":
		minutes := src.IntervalMinutes()
		if minutes <= 0 {
			return &SchedulerError{Workflow: j.workflowID, Trigger: j.triggerName, Reason: "interval_minutes must be positive"}
		}

		ticker := time.NewTicker(time.Duration(minutes) * intervalUnit)
		s.tickers[jobID] = ticker

		go func() {
			for range ticker.C {
				s.runWorkflow(jobID, j)
			}
		}()

	default:
		return &SchedulerError{Workflow: j.workflowID, Trigger: j.triggerName, Reason: fmt.Sprintf("unknown schedule_type %q", src.ScheduleType())}
	}

	return nil
}

// inLocation wraps a cron.Schedule so it is evaluated in the trigger's
// configured IANA zone rather than the process's local time.
type inLocation struct {
	cron.Schedule
	loc *time.Location
}

func (s inLocation) Next(t time.Time) time.Time {
	return s.Schedule.Next(t.In(s.loc)).In(t.Location())
}

// Start begins firing registered cron jobs. Interval tickers begin firing
// at registration time, independent of Start.
func (s *Scheduler) Start(ctx context.Context) {
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
}

// Shutdown stops new fires from starting. In-flight runs, dispatched with
// their own goroutine per fire, are allowed to finish on their own.
func (s *Scheduler) Shutdown() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	s.mu.Lock()
	for _, t := range s.tickers {
		t.Stop()
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

// runWorkflow is the scheduler's single dispatch point for both cron and
// interval fires. j.fireLock enforces the latest-only-coalesced missed-fire
// policy: if a previous fire for this trigger is still running, TryLock
// fails and this fire is dropped rather than queued.
func (s *Scheduler) runWorkflow(jobID string, j *job) {
	if !j.fireLock.TryLock() {
		s.logger.Warn("scheduler fire dropped, previous run still in flight", "job", jobID)
		return
	}

	go func() {
		defer j.fireLock.Unlock()

		ctx := context.Background()
		if s.runCtx != nil {
			// Detached from cancellation so Shutdown does not abort a run
			// that is already executing.
			ctx = context.WithoutCancel(s.runCtx)
		}

		ec, err := s.engine.Run(ctx, j.graph, j.triggerName, s.logger)
		if err != nil {
			s.logger.Error("scheduled workflow run failed", "job", jobID, "workflow_id", j.workflowID, "trigger", j.triggerName, "error", err)
			return
		}

		s.logger.Info("scheduled workflow run completed", "job", jobID, "workflow_id", j.workflowID, "trigger", j.triggerName, "status", ec.Status())
	}()
}
