// Package scheduler runs the periodic event reminder scan.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-backend/models"
	"crm-backend/services"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	PollSchedule = "@every 5m"
	// Lookahead bounds the events considered by one scan.
	Lookahead = 24 * time.Hour
	// Window is the tolerance around a reminder's fire instant.
	Window = 5 * time.Minute
)

var ErrUnsupportedChannel = errors.New("reminder channel not supported")

// Notifier delivers one reminder of one event.
type Notifier interface {
	Notify(ctx context.Context, event *models.Event, reminder models.Reminder) error
}

// MailNotifier delivers email reminders to the event owner. Other channels are accepted by
// the API but have no delivery backend.
type MailNotifier struct {
	mailer  services.Mailer
	company string
}

func NewMailNotifier(mailer services.Mailer, company string) *MailNotifier {
	return &MailNotifier{mailer: mailer, company: company}
}

func (n *MailNotifier) Notify(ctx context.Context, event *models.Event, reminder models.Reminder) error {
	if reminder.Type != models.ChannelEmail {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, reminder.Type)
	}
	if event.User == nil || event.User.Email == "" {
		return fmt.Errorf("event %s has no owner email", event.Id)
	}
	msg, err := services.EventMessage([]string{event.User.Email}, "Reminder: "+event.Title, services.EventEmail{
		Heading:     fmt.Sprintf("Upcoming event in %d minutes", reminder.Minutes),
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       event.StartDate,
		End:         event.EndDate,
		Company:     n.company,
	})
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, msg)
}

// Poller periodically scans upcoming events and dispatches reminders whose fire instant is
// within Window of now. Delivery is at-least-once and best effort: nothing records that a
// reminder was sent, and a failed dispatch is logged and skipped.
type Poller struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
	cron     *cron.Cron
}

func NewPoller(db *gorm.DB, notifier Notifier, log *zap.Logger) *Poller {
	return &Poller{
		db:       db,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log.Sugar()}))),
	}
}

// WithClock overrides the time source (tests).
func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Start schedules Scan every five minutes until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(PollSchedule, func() {
		if ctx.Err() != nil {
			return
		}
		n, err := p.Scan(ctx)
		if err != nil {
			p.log.Error("reminder scan failed", zap.Error(err))
			return
		}
		p.log.Debug("reminder scan done", zap.Int("dispatched", n))
	})
	if err != nil {
		return err
	}
	p.cron.Start()
	p.log.Info("reminder poller started", zap.String("schedule", PollSchedule))
	return nil
}

// Stop stops scheduling and returns a context that is done once a running scan finishes.
func (p *Poller) Stop() context.Context {
	return p.cron.Stop()
}

// Scan performs one pass and returns the number of dispatch attempts.
func (p *Poller) Scan(ctx context.Context) (int, error) {
	now := p.now()
	var events []models.Event
	err := p.db.WithContext(ctx).
		Preload("User").
		Where("start_date > ? AND start_date < ? AND status <> ?", now, now.Add(Lookahead), models.EventCancelled).
		Order("start_date ASC").
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("load upcoming events: %w", err)
	}

	attempts := 0
	for i := range events {
		event := &events[i]
		for _, r := range event.DueReminders(now, Window) {
			attempts++
			if err := p.notifier.Notify(ctx, event, r); err != nil {
				p.log.Warn("reminder dispatch failed",
					zap.String("event_id", event.Id),
					zap.String("channel", string(r.Type)),
					zap.Int("minutes", r.Minutes),
					zap.Error(err),
				)
			}
		}
	}
	return attempts, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
