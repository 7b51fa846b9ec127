// Package scheduler wires up the cron job that periodically reports the
// size of the scrape-review queue.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"bikecatalog/catalog-service/internal/events"
	"bikecatalog/catalog-service/internal/review"
)

// StatsSource is the part of review.Service the scheduler needs.
type StatsSource interface {
	QueueStats(ctx context.Context) (*review.QueueStats, error)
}

// Scheduler wraps robfig/cron and manages the queue report loop.
type Scheduler struct {
	cron  *cron.Cron
	stats StatsSource
	pub   events.Publisher
	log   zerolog.Logger
	spec  string // cron spec, e.g. "@every 30m"
}

// New creates a Scheduler that fires every intervalMinutes minutes.
func New(stats StatsSource, pub events.Publisher, log zerolog.Logger, intervalMinutes int) *Scheduler {
	if pub == nil {
		pub = events.Nop{}
	}
	log = log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron:  cron.New(cron.WithLogger(cronLogger{log: log})),
		stats: stats,
		pub:   pub,
		log:   log,
		spec:  fmt.Sprintf("@every %dm", intervalMinutes),
	}
}

// Start registers the job and starts the scheduler. The first report runs
// immediately so the queue size is visible without waiting for a tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.Report(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("cron started")

	go s.Report(ctx)

	return nil
}

// Stop shuts down the scheduler and waits for a running report to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("cron stopped")
}

// Report counts the queue, logs it, and publishes EVENT_REVIEW_QUEUE.
func (s *Scheduler) Report(ctx context.Context) {
	st, err := s.stats.QueueStats(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("queue stats failed")
		return
	}

	s.log.Info().
		Int("pending", st.Pending).
		Int("approved", st.Approved).
		Int("rejected", st.Rejected).
		Int("total", st.Total).
		Msg("review queue")

	err = s.pub.Publish(ctx, events.ReviewQueue, map[string]any{
		"pending":  st.Pending,
		"approved": st.Approved,
		"rejected": st.Rejected,
		"total":    st.Total,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("queue report publish failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
