package outbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-outbox-relay/internal/outboxdb"
)

const (
	uninitialized = iota
	running
	closed
)

const (
	cronJobExecutors  = 3
	defaultJobTimeout = 15 * time.Second
)

type JobScheduler interface {
	SetUp()
	Start()
	Close()
}

var (
	_ JobRegister  = &BackgroundJobProcessor{}
	_ JobScheduler = &BackgroundJobProcessor{}
)

// cronParser accepts the standard five fields with an optional leading seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// BackgroundJobProcessor runs the maintenance jobs on their cron schedules next to the poll loop.
type BackgroundJobProcessor struct {
	baseJobHandler
	registeredJobs map[string]HandleFunc
	jobMetas       []JobMeta
	jobsChan       chan string
	clock          clockwork.Clock
	shutdown       chan struct{}
	state          atomic.Uint32
	wg             sync.WaitGroup
	jobTimeout     time.Duration
}

type cronJobScheduler struct {
	meta      JobMeta
	schedule  cron.Schedule
	nextRunAt time.Time
}

func NewBackgroundJobProcessor(conf *Config, db outboxdb.OutboxMaintenanceDB, clock clockwork.Clock, logger *zap.Logger) *BackgroundJobProcessor {
	b := baseJobHandler{conf: conf, db: db, logger: logger.Named("maintenance")}
	bgJobProcessor := &BackgroundJobProcessor{
		baseJobHandler: b,
		registeredJobs: make(map[string]HandleFunc),
		clock:          clock,
		jobMetas:       make([]JobMeta, 0),
		jobsChan:       make(chan string),
		shutdown:       make(chan struct{}),
		jobTimeout:     defaultJobTimeout,
	}

	return bgJobProcessor
}

// SetUp registers the built-in maintenance jobs.
func (b *BackgroundJobProcessor) SetUp() {
	handlers := []JobHandler{
		newStalledLeaseJob(b.baseJobHandler),
		newQuarantineReportJob(b.baseJobHandler),
		newReindexJobHandler(b.baseJobHandler),
	}

	for _, j := range handlers {
		b.Register(j)
	}
}

// Register adds a job. Jobs registered after Start are ignored.
func (b *BackgroundJobProcessor) Register(handle JobHandler) {
	if b.state.Load() != uninitialized {
		b.logger.Warn("job registered after start, ignoring", zap.String("job", handle.Name()))
		return
	}
	if _, ok := b.registeredJobs[handle.Name()]; ok {
		b.logger.Warn("job already registered", zap.String("job", handle.Name()))
		return
	}

	handleFunc := func(ctx context.Context) error {
		return handle.Handle(ctx)
	}
	b.registeredJobs[handle.Name()] = handleFunc
	b.jobMetas = append(b.jobMetas, handle)
}

func (b *BackgroundJobProcessor) Start() {
	if !b.state.CompareAndSwap(uninitialized, running) {
		return
	}

	b.wg.Add(1)
	go b.cronJobOrchestrator()

	for range cronJobExecutors {
		b.wg.Add(1)
		go b.cronJobExecutor()
	}
}

// Close stops scheduling and waits for running jobs to return.
func (b *BackgroundJobProcessor) Close() {
	if b.state.Swap(closed) == closed {
		return
	}
	close(b.shutdown)
	b.wg.Wait()
}

func (b *BackgroundJobProcessor) cronJobOrchestrator() {
	defer b.wg.Done()

	queue := NewJobSchedulerQueue()
	now := b.clock.Now()
	for _, j := range b.jobMetas {
		schedule, err := cronParser.Parse(j.PeriodicSchedule())
		if err != nil {
			b.logger.Error("unable to parse crontab schedule",
				zap.String("job", j.Name()),
				zap.String("schedule", j.PeriodicSchedule()),
				zap.Error(err))
			continue
		}
		queue.Push(&cronJobScheduler{
			meta:      j,
			schedule:  schedule,
			nextRunAt: schedule.Next(now),
		})
	}

	if queue.Len() == 0 {
		return
	}

	for {
		cronJob := queue.Pop()
		dur := cronJob.nextRunAt.Sub(b.clock.Now())
		// in case of negative make sure the wait fires right away, the cron is already ready for a next run.
		if dur < 0 {
			dur = 0
		}
		select {
		case <-b.shutdown:
			return
		case <-b.clock.After(dur):
		}

		// in case more than one cron is overdue/ready. This can happen due to more frequent running jobs that
		// eventually overlap with other longer waiting jobs that are ready.
		now := b.clock.Now()
		cronJobsToConsume := []*cronJobScheduler{cronJob}
		for queue.Len() > 0 && !queue.Peek().nextRunAt.After(now) {
			cronJobsToConsume = append(cronJobsToConsume, queue.Pop())
		}

		// TODO: HA deployments fire the same crons on every worker. Record cron runs in the
		// database before executing so only one worker runs each tick.
		for _, readyJob := range cronJobsToConsume {
			select {
			case <-b.shutdown:
				return
			case b.jobsChan <- readyJob.meta.Name():
			}
			readyJob.nextRunAt = readyJob.schedule.Next(now)
			queue.Push(readyJob)
		}
	}
}

func (b *BackgroundJobProcessor) cronJobExecutor() {
	defer b.wg.Done()

	for {
		select {
		case <-b.shutdown:
			return
		case cronName := <-b.jobsChan:
			b.execute(cronName)
		}
	}
}

func (b *BackgroundJobProcessor) execute(cronName string) {
	ctx, cancel := context.WithTimeout(context.Background(), b.jobTimeout)
	defer cancel()

	handler, ok := b.registeredJobs[cronName]
	if !ok {
		return
	}
	if err := handler(ctx); err != nil {
		b.logger.Error("failed to execute maintenance job", zap.String("job", cronName), zap.Error(err))
		return
	}
	b.logger.Debug("maintenance job finished", zap.String("job", cronName))
}
