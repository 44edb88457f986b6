package relay

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	zlog "github.com/rs/zerolog/log"
)

// Drainer is the operation run on each scheduled drain.
type Drainer interface {
	Drain(ctx context.Context) (DrainReport, error)
}

// Scheduler runs drains on a cron schedule.
type Scheduler struct {
	mu     sync.Mutex
	parser cron.Parser
	c      *cron.Cron
	d      Drainer
	spec   string
}

// NewScheduler validates spec and returns a stopped scheduler.
// An empty spec yields a scheduler that never fires.
func NewScheduler(spec string, d Drainer) (*Scheduler, error) {
	s := &Scheduler{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		d:      d,
		spec:   strings.TrimSpace(spec),
	}
	if s.spec != "" {
		if _, err := s.parser.Parse(s.spec); err != nil {
			return nil, errors.Wrapf(err, "invalid drain schedule %q", s.spec)
		}
	}
	return s, nil
}

// Start begins firing drains. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || s.spec == "" {
		return nil
	}

	c := cron.New(cron.WithParser(s.parser))
	if _, err := c.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return errors.Wrap(err, "failed to register drain schedule")
	}
	c.Start()
	s.c = c

	zlog.Info().Msgf("relay: drain schedule started: spec=%s", s.spec)
	return nil
}

// Stop stops the schedule and waits for a running drain to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	zlog.Info().Msg("relay: drain schedule stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	report, err := s.d.Drain(ctx)
	switch {
	case errors.Is(err, ErrDrainInProgress):
		zlog.Debug().Msg("relay: scheduled drain skipped, another drain is running")
	case err != nil:
		zlog.Warn().Msgf("relay: scheduled drain failed: %v", err)
	case report.TotalRetried > 0:
		zlog.Info().Msgf("relay: scheduled drain: retried=%d failed=%d untried=%d",
			report.TotalRetried, report.FailedCount, report.Untried)
	}
}
