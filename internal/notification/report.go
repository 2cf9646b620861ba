package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// DefaultReportSchedule sends a session summary every 15 minutes.
const DefaultReportSchedule = "0 */15 * * * *"

// SummaryFunc builds the periodic summary event. ok is false when there
// is nothing to report yet.
type SummaryFunc func() (ev Event, ok bool)

// Reporter emits session_summary events on a cron schedule (with seconds
// field). It reads a published snapshot and never touches loop state.
type Reporter struct {
	cron    *cron.Cron
	sink    Notifier
	summary SummaryFunc
	ctx     context.Context
}

// NewReporter registers the summary job. An empty schedule uses
// DefaultReportSchedule.
func NewReporter(ctx context.Context, schedule string, sink Notifier, summary SummaryFunc) (*Reporter, error) {
	if schedule == "" {
		schedule = DefaultReportSchedule
	}
	r := &Reporter{
		cron:    cron.New(cron.WithSeconds()),
		sink:    sink,
		summary: summary,
		ctx:     ctx,
	}
	if _, err := r.cron.AddFunc(schedule, r.RunNow); err != nil {
		return nil, fmt.Errorf("register report schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start starts the cron scheduler.
func (r *Reporter) Start() {
	r.cron.Start()
	log.Println("[report] scheduler started")
}

// Stop stops the scheduler and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
	log.Println("[report] scheduler stopped")
}

// RunNow sends one summary immediately.
func (r *Reporter) RunNow() {
	ev, ok := r.summary()
	if !ok {
		return
	}
	if err := r.sink.Notify(r.ctx, ev); err != nil {
		log.Printf("[report] send summary: %v", err)
	}
}
