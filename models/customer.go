package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "active"
	CustomerLead     CustomerStatus = "lead"
	CustomerInactive CustomerStatus = "inactive"
	CustomerLost     CustomerStatus = "lost"
)

type CustomerSource string

const (
	SourceWebsite     CustomerSource = "website"
	SourceReferral    CustomerSource = "referral"
	SourceSocialMedia CustomerSource = "social_media"
	SourceAdvertising CustomerSource = "advertising"
	SourceOther       CustomerSource = "other"
)

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

type Customer struct {
	Id            string                      `json:"id" gorm:"primaryKey;size:36"`
	FirstName     string                      `json:"first_name" gorm:"not null"`
	LastName      string                      `json:"last_name" gorm:"not null"`
	Email         string                      `json:"email" gorm:"uniqueIndex;not null"`
	Phone         string                      `json:"phone"`
	Company       string                      `json:"company"`
	Position      string                      `json:"position"`
	Address       Address                     `json:"address" gorm:"embedded;embeddedPrefix:address_"`
	Status        CustomerStatus              `json:"status" gorm:"size:20;index;not null"`
	Source        CustomerSource              `json:"source" gorm:"size:20;index;not null"`
	Tags          datatypes.JSONSlice[string] `json:"tags"`
	Notes         string                      `json:"notes"`
	AssignedToId  *string                     `json:"assigned_to_id,omitempty" gorm:"size:36;index"`
	AssignedTo    *User                       `json:"assigned_to,omitempty" gorm:"foreignKey:AssignedToId"`
	CustomerValue int                         `json:"customer_value" gorm:"not null;default:0"`
	LastContact   *time.Time                  `json:"last_contact,omitempty"`
	Interactions  []Interaction               `json:"interactions,omitempty" gorm:"foreignKey:CustomerId"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

func (customer *Customer) BeforeCreate(tx *gorm.DB) (err error) {
	if customer.Id == "" {
		customer.Id = uuid.NewString()
	}
	if customer.Status == "" {
		customer.Status = CustomerLead
	}
	if customer.Source == "" {
		customer.Source = SourceOther
	}
	if customer.Tags == nil {
		customer.Tags = datatypes.JSONSlice[string]{}
	}
	customer.Email = NormalizeEmail(customer.Email)
	return
}

func (customer *Customer) FullName() string {
	return customer.FirstName + " " + customer.LastName
}
