package services

import (
	"context"
	"fmt"
	"time"

	"crm-backend/config"
	"crm-backend/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const primaryCalendar = "primary"

// Calendar mirrors CRM events to a user's Google Calendar.
type Calendar interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// Refresh returns a valid token, refreshing tok when it has expired.
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
	CreateEvent(ctx context.Context, tok *oauth2.Token, event *models.Event) (string, error)
	UpdateEvent(ctx context.Context, tok *oauth2.Token, event *models.Event) error
	DeleteEvent(ctx context.Context, tok *oauth2.Token, googleID string) error
}

type GoogleCalendar struct {
	oauth    *oauth2.Config
	timeZone string
}

func NewGoogleCalendar(cfg config.GoogleConfig) *GoogleCalendar {
	return &GoogleCalendar{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarScope, calendar.CalendarEventsScope},
		},
		timeZone: cfg.TimeZone,
	}
}

// AuthURL requests offline access so a refresh token is issued, and forces the consent
// screen so it is issued again on reconnect.
func (g *GoogleCalendar) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (g *GoogleCalendar) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange: %w", err)
	}
	return tok, nil
}

func (g *GoogleCalendar) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := g.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("google token refresh: %w", err)
	}
	return fresh, nil
}

func (g *GoogleCalendar) service(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
	return calendar.NewService(ctx, option.WithTokenSource(g.oauth.TokenSource(ctx, tok)))
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, tok *oauth2.Token, event *models.Event) (string, error) {
	srv, err := g.service(ctx, tok)
	if err != nil {
		return "", err
	}
	created, err := srv.Events.Insert(primaryCalendar, ToGoogleEvent(event, g.timeZone)).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("google calendar insert: %w", err)
	}
	return created.Id, nil
}

func (g *GoogleCalendar) UpdateEvent(ctx context.Context, tok *oauth2.Token, event *models.Event) error {
	if event.GoogleCalendarId == "" {
		return fmt.Errorf("event %s has no google calendar id", event.Id)
	}
	srv, err := g.service(ctx, tok)
	if err != nil {
		return err
	}
	_, err = srv.Events.Update(primaryCalendar, event.GoogleCalendarId, ToGoogleEvent(event, g.timeZone)).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("google calendar update: %w", err)
	}
	return nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, tok *oauth2.Token, googleID string) error {
	srv, err := g.service(ctx, tok)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(primaryCalendar, googleID).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("google calendar delete: %w", err)
	}
	return nil
}

// ToGoogleEvent maps a CRM event onto the Calendar API representation.
func ToGoogleEvent(event *models.Event, timeZone string) *calendar.Event {
	attendees := make([]*calendar.EventAttendee, 0, len(event.Attendees))
	for _, a := range event.Attendees {
		attendees = append(attendees, &calendar.EventAttendee{
			Email:          a.Email,
			DisplayName:    a.Name,
			ResponseStatus: GoogleAttendeeStatus(a.Status),
		})
	}
	return &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       eventDateTime(event.StartDate, event.AllDay, timeZone),
		End:         eventDateTime(event.EndDate, event.AllDay, timeZone),
		Attendees:   attendees,
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
		ColorId: GoogleColorID(event.Color),
		Status:  GoogleEventStatus(event.Status),
	}
}

func eventDateTime(t time.Time, allDay bool, timeZone string) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format("2006-01-02")}
	}
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: timeZone}
}

var googleColors = map[string]string{
	"#3498db": "1",
	"#e74c3c": "4",
	"#2ecc71": "2",
	"#f39c12": "6",
	"#9b59b6": "3",
	"#1abc9c": "7",
	"#34495e": "8",
	"#7f8c8d": "5",
}

// GoogleColorID maps a palette hex color to a Google color id, "1" (blue) otherwise.
func GoogleColorID(color string) string {
	if id, ok := googleColors[color]; ok {
		return id
	}
	return "1"
}

func GoogleEventStatus(status models.EventStatus) string {
	switch status {
	case models.EventCancelled:
		return "cancelled"
	case models.EventPostponed:
		return "tentative"
	default:
		return "confirmed"
	}
}

func GoogleAttendeeStatus(status models.AttendeeStatus) string {
	switch status {
	case models.AttendeeAccepted:
		return "accepted"
	case models.AttendeeDeclined:
		return "declined"
	case models.AttendeeTentative:
		return "tentative"
	default:
		return "needsAction"
	}
}

// TokenFromUser rebuilds the stored oauth2 token of a linked user.
func TokenFromUser(user *models.User) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  user.GoogleAccessToken,
		RefreshToken: user.GoogleRefreshToken,
		TokenType:    "Bearer",
	}
	if user.GoogleTokenExpiry != nil {
		tok.Expiry = *user.GoogleTokenExpiry
	}
	return tok
}
