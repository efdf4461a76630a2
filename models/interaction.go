package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InteractionType string

const (
	InteractionPhone   InteractionType = "phone"
	InteractionEmail   InteractionType = "email"
	InteractionMeeting InteractionType = "meeting"
	InteractionNote    InteractionType = "note"
	InteractionOther   InteractionType = "other"
)

type InteractionStatus string

const (
	InteractionPending   InteractionStatus = "pending"
	InteractionCompleted InteractionStatus = "completed"
	InteractionScheduled InteractionStatus = "scheduled"
)

type InteractionDocument struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	UploadDate time.Time `json:"upload_date"`
}

type Interaction struct {
	Id           string                                   `json:"id" gorm:"primaryKey;size:36"`
	CustomerId   string                                   `json:"customer_id" gorm:"size:36;index;not null"`
	Customer     *Customer                                `json:"customer,omitempty" gorm:"foreignKey:CustomerId"`
	Type         InteractionType                          `json:"type" gorm:"size:20;not null"`
	Description  string                                   `json:"description" gorm:"not null"`
	Date         time.Time                                `json:"date" gorm:"index"`
	CreatedById  string                                   `json:"created_by_id" gorm:"size:36;not null"`
	CreatedBy    *User                                    `json:"created_by,omitempty" gorm:"foreignKey:CreatedById"`
	NextFollowUp *time.Time                               `json:"next_follow_up,omitempty" gorm:"index"`
	Status       InteractionStatus                        `json:"status" gorm:"size:20;not null"`
	Documents    datatypes.JSONSlice[InteractionDocument] `json:"documents"`
	CreatedAt    time.Time                                `json:"created_at"`
	UpdatedAt    time.Time                                `json:"updated_at"`
}

func (interaction *Interaction) BeforeCreate(tx *gorm.DB) (err error) {
	if interaction.Id == "" {
		interaction.Id = uuid.NewString()
	}
	if interaction.Status == "" {
		interaction.Status = InteractionCompleted
	}
	if interaction.Date.IsZero() {
		interaction.Date = time.Now()
	}
	if interaction.Documents == nil {
		interaction.Documents = datatypes.JSONSlice[InteractionDocument]{}
	}
	return
}
