package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm-backend/database"
	"crm-backend/models"
	"crm-backend/scheduler"
	"crm-backend/services"
	"crm-backend/services/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func seedEvent(t *testing.T, db *gorm.DB, owner *models.User, start time.Time, status models.EventStatus, reminders ...models.Reminder) {
	t.Helper()
	event := models.Event{
		Title:     "Call with Grace",
		Type:      models.EventCall,
		StartDate: start,
		EndDate:   start.Add(30 * time.Minute),
		Status:    status,
		UserId:    owner.Id,
		Reminders: reminders,
	}
	require.NoError(t, db.Create(&event).Error)
}

func TestScanDispatchesDueReminders(t *testing.T) {
	db, err := database.OpenSQLiteMemory(t.Name())
	require.NoError(t, err)

	owner := models.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: []byte("x"), IsActive: true}
	require.NoError(t, db.Create(&owner).Error)

	now := time.Now().UTC().Truncate(time.Second)
	inAnHour := now.Add(time.Hour)
	email60 := models.Reminder{Minutes: 60, Type: models.ChannelEmail}

	seedEvent(t, db, &owner, inAnHour, models.EventPlanned, email60, models.Reminder{Minutes: 60, Type: models.ChannelPush}, models.Reminder{Minutes: 30, Type: models.ChannelEmail})
	seedEvent(t, db, &owner, inAnHour, models.EventCancelled, email60)
	seedEvent(t, db, &owner, now.Add(-time.Hour), models.EventPlanned, email60)
	seedEvent(t, db, &owner, now.Add(48*time.Hour), models.EventPlanned, models.Reminder{Minutes: 48 * 60, Type: models.ChannelEmail})

	ctrl := gomock.NewController(t)
	mailer := mocks.NewMockMailer(ctrl)
	mailer.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg services.Message) error {
			assert.Equal(t, []string{"ada@example.com"}, msg.To)
			assert.Equal(t, "Reminder: Call with Grace", msg.Subject)
			assert.Contains(t, msg.HTML, "Upcoming event in 60 minutes")
			return nil
		}).
		Times(1)

	core, logs := observer.New(zap.WarnLevel)
	poller := scheduler.NewPoller(db, scheduler.NewMailNotifier(mailer, "Acme"), zap.New(core)).
		WithClock(func() time.Time { return now })

	attempts, err := poller.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	failed := logs.FilterMessage("reminder dispatch failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "push", failed[0].ContextMap()["channel"])
}

func TestScanKeepsGoingAfterFailures(t *testing.T) {
	db, err := database.OpenSQLiteMemory(t.Name())
	require.NoError(t, err)

	owner := models.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: []byte("x"), IsActive: true}
	require.NoError(t, db.Create(&owner).Error)

	now := time.Now().UTC().Truncate(time.Second)
	email := models.Reminder{Minutes: 15, Type: models.ChannelEmail}
	seedEvent(t, db, &owner, now.Add(15*time.Minute), models.EventPlanned, email)
	seedEvent(t, db, &owner, now.Add(17*time.Minute), models.EventPlanned, email)

	ctrl := gomock.NewController(t)
	mailer := mocks.NewMockMailer(ctrl)
	gomock.InOrder(
		mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down")),
		mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil),
	)

	poller := scheduler.NewPoller(db, scheduler.NewMailNotifier(mailer, "Acme"), zap.NewNop()).
		WithClock(func() time.Time { return now })

	attempts, err := poller.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestMailNotifierRejectsUnsupportedChannels(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := scheduler.NewMailNotifier(mocks.NewMockMailer(ctrl), "Acme")

	err := notifier.Notify(context.Background(), &models.Event{User: &models.User{Email: "a@example.com"}}, models.Reminder{Type: models.ChannelInApp})
	assert.ErrorIs(t, err, scheduler.ErrUnsupportedChannel)

	err = notifier.Notify(context.Background(), &models.Event{Id: "e-1"}, models.Reminder{Type: models.ChannelEmail})
	assert.ErrorContains(t, err, "no owner email")
}

func TestStartAndStop(t *testing.T) {
	db, err := database.OpenSQLiteMemory(t.Name())
	require.NoError(t, err)

	poller := scheduler.NewPoller(db, scheduler.NewMailNotifier(services.NewLogMailer(zap.NewNop()), "Acme"), zap.NewNop())
	require.NoError(t, poller.Start(context.Background()))

	select {
	case <-poller.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
