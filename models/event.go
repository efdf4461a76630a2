package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventType string

const (
	EventMeeting     EventType = "meeting"
	EventAppointment EventType = "appointment"
	EventCall        EventType = "call"
	EventEmail       EventType = "email"
	EventTask        EventType = "task"
	EventOther       EventType = "other"
)

type EventStatus string

const (
	EventPlanned   EventStatus = "planned"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
	EventPostponed EventStatus = "postponed"
)

type ReminderChannel string

const (
	ChannelEmail ReminderChannel = "email"
	ChannelPush  ReminderChannel = "push"
	ChannelInApp ReminderChannel = "in_app"
)

type AttendeeStatus string

const (
	AttendeeInvited   AttendeeStatus = "invited"
	AttendeeAccepted  AttendeeStatus = "accepted"
	AttendeeDeclined  AttendeeStatus = "declined"
	AttendeeTentative AttendeeStatus = "tentative"
)

const DefaultEventColor = "#3498db"

type Reminder struct {
	Minutes int             `json:"minutes"`
	Type    ReminderChannel `json:"type"`
}

// FireAt is the instant the reminder is due for an event starting at start.
func (r Reminder) FireAt(start time.Time) time.Time {
	return start.Add(-time.Duration(r.Minutes) * time.Minute)
}

type Attendee struct {
	Name   string         `json:"name"`
	Email  string         `json:"email"`
	Status AttendeeStatus `json:"status"`
}

type Event struct {
	Id               string                        `json:"id" gorm:"primaryKey;size:36"`
	Title            string                        `json:"title" gorm:"not null"`
	Description      string                        `json:"description"`
	Type             EventType                     `json:"type" gorm:"size:20;not null"`
	StartDate        time.Time                     `json:"start_date" gorm:"index;not null"`
	EndDate          time.Time                     `json:"end_date" gorm:"not null"`
	AllDay           bool                          `json:"all_day"`
	Status           EventStatus                   `json:"status" gorm:"size:20;index;not null"`
	Color            string                        `json:"color" gorm:"size:7"`
	Location         string                        `json:"location"`
	UserId           string                        `json:"user_id" gorm:"size:36;index;not null"`
	User             *User                         `json:"user,omitempty" gorm:"foreignKey:UserId"`
	CustomerId       *string                       `json:"customer_id,omitempty" gorm:"size:36;index"`
	Customer         *Customer                     `json:"customer,omitempty" gorm:"foreignKey:CustomerId"`
	Reminders        datatypes.JSONSlice[Reminder] `json:"reminders"`
	GoogleCalendarId string                        `json:"google_calendar_id,omitempty"`
	Attendees        datatypes.JSONSlice[Attendee] `json:"attendees"`
	CreatedAt        time.Time                     `json:"created_at"`
	UpdatedAt        time.Time                     `json:"updated_at"`
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.Id == "" {
		event.Id = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = EventPlanned
	}
	if event.Color == "" {
		event.Color = DefaultEventColor
	}
	if event.Reminders == nil {
		event.Reminders = datatypes.JSONSlice[Reminder]{}
	}
	if event.Attendees == nil {
		event.Attendees = datatypes.JSONSlice[Attendee]{}
	}
	return
}

func (event *Event) BeforeSave(tx *gorm.DB) (err error) {
	return event.Validate()
}

// Validate checks the date range.
func (event *Event) Validate() error {
	if event.EndDate.Before(event.StartDate) {
		return ErrEventEndBeforeStart
	}
	return nil
}

// DueReminders returns the reminders whose fire instant lies within window of now.
func (event *Event) DueReminders(now time.Time, window time.Duration) []Reminder {
	var due []Reminder
	for _, r := range event.Reminders {
		d := r.FireAt(event.StartDate).Sub(now)
		if d < 0 {
			d = -d
		}
		if d < window {
			due = append(due, r)
		}
	}
	return due
}
