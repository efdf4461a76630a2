package services

import (
	"testing"
	"time"

	"crm-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestToGoogleEvent(t *testing.T) {
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	event := &models.Event{
		Title:       "Kickoff",
		Description: "Project start",
		Location:    "Office",
		StartDate:   start,
		EndDate:     start.Add(time.Hour),
		Status:      models.EventPostponed,
		Color:       "#e74c3c",
		Attendees: []models.Attendee{
			{Name: "Grace", Email: "grace@example.com", Status: models.AttendeeAccepted},
			{Email: "bob@example.com", Status: models.AttendeeInvited},
		},
	}

	g := ToGoogleEvent(event, "Europe/Istanbul")

	assert.Equal(t, "Kickoff", g.Summary)
	assert.Equal(t, "Office", g.Location)
	assert.Equal(t, "2026-10-20T09:00:00Z", g.Start.DateTime)
	assert.Equal(t, "Europe/Istanbul", g.Start.TimeZone)
	assert.Equal(t, "2026-10-20T10:00:00Z", g.End.DateTime)
	assert.Equal(t, "4", g.ColorId)
	assert.Equal(t, "tentative", g.Status)
	require.Len(t, g.Attendees, 2)
	assert.Equal(t, "accepted", g.Attendees[0].ResponseStatus)
	assert.Equal(t, "Grace", g.Attendees[0].DisplayName)
	assert.Equal(t, "needsAction", g.Attendees[1].ResponseStatus)
	assert.False(t, g.Reminders.UseDefault)
	assert.Len(t, g.Reminders.Overrides, 2)
}

func TestToGoogleEventAllDay(t *testing.T) {
	start := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	g := ToGoogleEvent(&models.Event{StartDate: start, EndDate: start.AddDate(0, 0, 1), AllDay: true}, "UTC")

	assert.Equal(t, "2026-10-20", g.Start.Date)
	assert.Empty(t, g.Start.DateTime)
	assert.Equal(t, "2026-10-21", g.End.Date)
	assert.Equal(t, "confirmed", g.Status)
	assert.Equal(t, "1", g.ColorId)
}

func TestGoogleMappings(t *testing.T) {
	assert.Equal(t, "2", GoogleColorID("#2ecc71"))
	assert.Equal(t, "1", GoogleColorID("#000000"))

	assert.Equal(t, "cancelled", GoogleEventStatus(models.EventCancelled))
	assert.Equal(t, "confirmed", GoogleEventStatus(models.EventCompleted))

	assert.Equal(t, "declined", GoogleAttendeeStatus(models.AttendeeDeclined))
	assert.Equal(t, "tentative", GoogleAttendeeStatus(models.AttendeeTentative))
}

func TestTokenFromUser(t *testing.T) {
	expiry := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	tok := TokenFromUser(&models.User{GoogleAccessToken: "a", GoogleRefreshToken: "r", GoogleTokenExpiry: &expiry})

	assert.Equal(t, &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}, tok)
	assert.True(t, TokenFromUser(&models.User{}).Expiry.IsZero())
}

func TestAuthURLRequestsOfflineAccess(t *testing.T) {
	g := NewGoogleCalendar(configForTest())
	url := g.AuthURL("user-1")

	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
	assert.Contains(t, url, "state=user-1")
	assert.Contains(t, url, "client_id=client")
}
