// Package scheduler drives the wall-clock job table: cron triggers,
// singleton-per-job execution, startup modes, manual triggers and
// execution logs.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// BarSource is the slice of the fetch fabric bulk jobs need.
type BarSource interface {
	DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, string, error)
}

// job is one schedulable unit. idempotent jobs may be manually triggered
// while a run is in flight; everything else is singleton.
type job struct {
	name       string
	idempotent bool
	run        func(ctx context.Context) (rows int, err error)
	// gate reports whether a scheduled trigger should run now; a non-empty
	// skip reason drops the trigger. Manual triggers bypass the gate.
	gate func(now time.Time) string

	mu      sync.Mutex
	running bool
	status  models.JobStatus
}

// Scheduler implements interfaces.SchedulerService.
type Scheduler struct {
	registry interfaces.RegistryService
	klines   interfaces.KlineService
	bars     BarSource
	realtime interfaces.RealtimeService
	strategy interfaces.StrategyService
	news     interfaces.NewsService
	charts   interfaces.ChartService
	execLogs interfaces.ExecLogStorage
	calendar *common.Calendar
	cfg      *common.SchedulerConfig
	logger   *common.Logger

	mode    common.InitMode
	cron    *cron.Cron
	jobs    map[string]*job
	order   []string
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates the scheduler and registers the job table. Nothing runs
// until Start.
func New(
	registry interfaces.RegistryService,
	klines interfaces.KlineService,
	bars BarSource,
	realtime interfaces.RealtimeService,
	strategy interfaces.StrategyService,
	news interfaces.NewsService,
	charts interfaces.ChartService,
	execLogs interfaces.ExecLogStorage,
	calendar *common.Calendar,
	cfg *common.SchedulerConfig,
	logger *common.Logger,
) *Scheduler {
	s := &Scheduler{
		registry: registry,
		klines:   klines,
		bars:     bars,
		realtime: realtime,
		strategy: strategy,
		news:     news,
		charts:   charts,
		execLogs: execLogs,
		calendar: calendar,
		cfg:      cfg,
		logger:   logger,
		mode:     cfg.GetInitMode(),
		jobs:     map[string]*job{},
	}
	s.register()
	return s
}

func (s *Scheduler) add(j *job) {
	j.status = models.JobStatus{Name: j.name}
	s.jobs[j.name] = j
	s.order = append(s.order, j.name)
}

// Start registers the cron table and runs the startup jobs allowed by
// the init mode.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	c := cron.New(cron.WithLocation(s.calendar.Location()))
	specs := map[string][]string{
		models.JobRefreshSymbolList: {"0 8 * * 1"},
		models.JobFullBarRefresh:    {"30 17 * * 1-5", "0 9 * * 6"},
		models.JobSmartBarUpdate:    {"45 15 * * 1-5"},
		models.JobComputeSignals:    {"*/30 9-15 * * 1-5"},
		models.JobNewsCrawl:         {"0 */2 * * *"},
		models.JobCleanupCharts:     {"0 0 * * *"},
	}
	for name, entries := range specs {
		for _, spec := range entries {
			if _, err := c.AddFunc(spec, s.scheduledRun(name)); err != nil {
				return common.WrapError(common.KindConfigInvalid, err, "cron spec %q for %s", spec, name)
			}
		}
	}
	c.Schedule(cron.Every(s.cfg.GetRealtimeUpdateInterval()), cron.FuncJob(s.scheduledRun(models.JobRealtimeSnapshot)))
	s.cron = c
	c.Start()

	s.safeGo("startup", func() { s.runStartup(s.baseCtx) })

	s.logger.Info().
		Str("mode", string(s.mode)).
		Int("jobs", len(s.jobs)).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron table, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// Trigger runs one job by name on behalf of an operator. The init mode
// still excludes bulk jobs in skip mode; a running non-idempotent job
// rejects the trigger.
func (s *Scheduler) Trigger(ctx context.Context, name string) (*models.ExecutionLog, error) {
	j, ok := s.jobs[name]
	if !ok {
		return nil, common.NewError(common.KindBadInput, "unknown job %q", name)
	}
	if reason := s.modeRejects(name); reason != "" {
		return nil, common.NewError(common.KindBadInput, "job %s rejected: %s", name, reason)
	}
	return s.execute(ctx, j, true)
}

// Status reports the init mode and the per-job state.
func (s *Scheduler) Status() interfaces.SchedulerStatus {
	out := interfaces.SchedulerStatus{Mode: string(s.mode)}
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	for _, name := range names {
		j := s.jobs[name]
		j.mu.Lock()
		st := j.status
		st.Running = j.running
		j.mu.Unlock()
		out.Jobs = append(out.Jobs, st)
	}
	return out
}

// scheduledRun wraps a job for cron: gates are honoured and a dropped
// trigger records a skip entry.
func (s *Scheduler) scheduledRun(name string) func() {
	return func() {
		j := s.jobs[name]
		if reason := s.modeRejects(name); reason != "" {
			return // mode excludes the job entirely; no log spam per tick
		}
		if j.gate != nil {
			if reason := j.gate(s.calendar.Now()); reason != "" {
				s.skip(s.baseCtx, j, reason)
				return
			}
		}
		s.safeGo(name, func() {
			_, err := s.execute(s.baseCtx, j, false)
			if err != nil && !common.IsKind(err, common.KindConflictSingleton) && !common.IsKind(err, common.KindNotReady) {
				s.logger.Warn().Err(err).Str("job", name).Msg("Scheduled job failed")
			}
		})
	}
}

// execute runs one job under the singleton gate, recording the outcome.
func (s *Scheduler) execute(ctx context.Context, j *job, manual bool) (*models.ExecutionLog, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		if manual && !j.idempotent {
			return nil, common.NewError(common.KindConflictSingleton, "job %s already running", j.name)
		}
		if !manual {
			s.skip(ctx, j, models.SkipAlreadyRunning)
			return nil, common.NewError(common.KindConflictSingleton, "job %s already running", j.name)
		}
		// Manual trigger of an idempotent job runs alongside.
	} else {
		j.running = true
		j.mu.Unlock()
		defer func() {
			j.mu.Lock()
			j.running = false
			j.mu.Unlock()
		}()
	}

	started := s.calendar.Now()
	entry := &models.ExecutionLog{Job: j.name, StartedAt: started}

	rows, err := s.runRecovered(ctx, j)
	entry.ElapsedMS = time.Since(started).Milliseconds()
	entry.Rows = rows

	switch {
	case common.IsKind(err, common.KindNotReady):
		// Informational: the completeness gate is not met yet.
		entry.Status = models.ExecStatusSkip
		entry.Reason = models.SkipNotReady
		entry.Error = err.Error()
		s.logger.Info().Str("job", j.name).Str("reason", entry.Reason).Msg("Job skipped")
	case err != nil:
		entry.Status = models.ExecStatusFail
		entry.Error = err.Error()
		s.logger.Warn().Err(err).Str("job", j.name).Int64("elapsed_ms", entry.ElapsedMS).Msg("Job failed")
	default:
		entry.Status = models.ExecStatusSuccess
		s.logger.Info().Str("job", j.name).Int("rows", rows).Int64("elapsed_ms", entry.ElapsedMS).Msg("Job complete")
	}

	s.record(ctx, j, entry)
	if err != nil {
		return entry, err
	}
	return entry, nil
}

// runRecovered invokes the job body with panic recovery: a panicking job
// must not kill the process.
func (s *Scheduler) runRecovered(ctx context.Context, j *job) (rows int, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job", j.name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in job")
			err = common.NewError(common.KindInternal, "panic in job %s: %v", j.name, r)
		}
	}()
	return j.run(ctx)
}

// skip records a dropped trigger.
func (s *Scheduler) skip(ctx context.Context, j *job, reason string) {
	entry := &models.ExecutionLog{
		Job:       j.name,
		Status:    models.ExecStatusSkip,
		Reason:    reason,
		StartedAt: s.calendar.Now(),
	}
	s.logger.Info().Str("job", j.name).Str("reason", reason).Msg("Job trigger skipped")
	s.record(ctx, j, entry)
}

// record writes the execution log and folds the outcome into the job
// status.
func (s *Scheduler) record(ctx context.Context, j *job, entry *models.ExecutionLog) {
	if err := s.execLogs.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("job", j.name).Msg("Execution log write failed")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.LastRunAt = entry.StartedAt
	j.status.LastStatus = entry.Status
	j.status.LastError = entry.Error
	if entry.Status == models.ExecStatusSkip {
		j.status.Skips++
	} else {
		j.status.Runs++
	}
}

// modeRejects reports why the init mode excludes a job, or empty.
func (s *Scheduler) modeRejects(name string) string {
	if s.mode != common.InitModeSkip {
		return ""
	}
	switch name {
	case models.JobRefreshSymbolList, models.JobFullBarRefresh, models.JobSmartBarUpdate:
		return models.SkipModeRejected
	}
	return ""
}

// safeGo launches a goroutine with panic recovery and logging.
func (s *Scheduler) safeGo(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in scheduler goroutine")
			}
		}()
		fn()
	}()
}

// Compile-time check
var _ interfaces.SchedulerService = (*Scheduler)(nil)
