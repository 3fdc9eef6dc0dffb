/*
reminder.go - Pending-decision reminder scheduler

PURPOSE:
  Periodically looks for overtime and shift-change requests that have been
  pending longer than StaleAfter and hands them to a Notifier, so approvers
  who have not decided yet get nudged.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs once immediately on start
  - Each reminder names the roles still undecided and who may decide them
  - A failing notifier is logged; the next tick tries again

CONFIGURATION:
  - REMINDER_INTERVAL: How often to check (0 disables the scheduler)
  - REMINDER_STALE_AFTER: Minimum pending age (default 48h)

USAGE:
  rs := NewReminderScheduler(handler, SlogNotifier{Logger: logger})
  rs.Start()
  // ... later
  rs.Stop()
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// Reminder is one request still waiting on approvers.
type Reminder struct {
	Kind       generic.RequestKind
	RequestID  generic.RequestID
	EmployeeID generic.EmployeeID
	FiledAt    time.Time
	Waiting    []Awaiting
}

// Awaiting is an undecided role and the users who may decide it. Empty
// Approvers means anyone may.
type Awaiting struct {
	Role      generic.Role
	Approvers []string
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, reminders []Reminder) error
}

// SlogNotifier writes each reminder as a structured log line.
type SlogNotifier struct {
	Logger *slog.Logger
}

// Notify logs one line per reminder.
func (n SlogNotifier) Notify(ctx context.Context, reminders []Reminder) error {
	for _, rm := range reminders {
		for _, aw := range rm.Waiting {
			n.Logger.InfoContext(ctx, "request awaiting decision",
				"kind", rm.Kind.String(),
				"request_id", rm.RequestID,
				"employee_id", rm.EmployeeID,
				"pending_for", time.Since(rm.FiledAt).Round(time.Minute).String(),
				"role", string(aw.Role),
				"approvers", aw.Approvers,
			)
		}
	}
	return nil
}

func awaiting(a generic.Approval, ap generic.Approvers) []Awaiting {
	var out []Awaiting
	if a.Leader.Decision == generic.DecisionUndecided {
		out = append(out, Awaiting{Role: generic.RoleLeader, Approvers: ap.Leaders})
	}
	if a.Manager.Decision == generic.DecisionUndecided {
		var m []string
		if ap.Manager != "" {
			m = []string{ap.Manager}
		}
		out = append(out, Awaiting{Role: generic.RoleManager, Approvers: m})
	}
	return out
}

// ReminderScheduler periodically notifies about stale pending requests.
type ReminderScheduler struct {
	Handler       *Handler
	Notifier      Notifier
	CheckInterval time.Duration
	StaleAfter    time.Duration
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReminderScheduler returns a scheduler that checks hourly and
// reminds about requests pending for two days.
func NewReminderScheduler(h *Handler, n Notifier) *ReminderScheduler {
	return &ReminderScheduler{
		Handler:       h,
		Notifier:      n,
		CheckInterval: time.Hour,
		StaleAfter:    48 * time.Hour,
		Now:           time.Now,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil || rs.CheckInterval <= 0 {
		return
	}
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)
	go rs.run()

	rs.Handler.Logger.Info("reminder scheduler started",
		"interval", rs.CheckInterval.String(), "stale_after", rs.StaleAfter.String())
}

// Stop stops the scheduler and waits for a running check to finish.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.stop = make(chan struct{})
		rs.Handler.Logger.Info("reminder scheduler stopped")
	}
}

func (rs *ReminderScheduler) run() {
	defer rs.wg.Done()

	rs.check()
	for {
		select {
		case <-rs.ticker.C:
			rs.check()
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReminderScheduler) check() {
	ctx := context.Background()
	reminders, err := rs.Collect(ctx)
	if err != nil {
		rs.Handler.Logger.Error("reminder scan failed", "error", err)
		return
	}
	if len(reminders) == 0 {
		return
	}
	if err := rs.Notifier.Notify(ctx, reminders); err != nil {
		rs.Handler.Logger.Error("reminder delivery failed", "count", len(reminders), "error", err)
	}
}

// Collect lists every request pending since before Now - StaleAfter.
func (rs *ReminderScheduler) Collect(ctx context.Context) ([]Reminder, error) {
	cutoff := rs.Now().Add(-rs.StaleAfter)

	ots, err := rs.Handler.Overtime.StalePending(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	scs, err := rs.Handler.ShiftChanges.StalePending(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	out := make([]Reminder, 0, len(ots)+len(scs))
	for _, r := range ots {
		out = append(out, Reminder{
			Kind:       generic.KindOvertime,
			RequestID:  r.ID,
			EmployeeID: r.EmployeeID,
			FiledAt:    r.FiledAt,
			Waiting:    awaiting(r.Approval, r.Approvers),
		})
	}
	for _, r := range scs {
		out = append(out, Reminder{
			Kind:       generic.KindShiftChange,
			RequestID:  r.ID,
			EmployeeID: r.EmployeeID,
			FiledAt:    r.FiledAt,
			Waiting:    awaiting(r.Approval, r.Approvers()),
		})
	}
	return out, nil
}
