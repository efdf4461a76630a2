package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

const (
	passwordCost          = 12
	passwordResetLifetime = 30 * time.Minute
)

type User struct {
	Id                    string     `json:"id" gorm:"primaryKey;size:36"`
	FirstName             string     `json:"first_name" gorm:"not null"`
	LastName              string     `json:"last_name" gorm:"not null"`
	Email                 string     `json:"email" gorm:"uniqueIndex;not null"`
	Password              []byte     `json:"-" gorm:"not null"`
	Role                  Role       `json:"role" gorm:"size:20;not null;default:user"`
	Department            string     `json:"department"`
	Phone                 string     `json:"phone"`
	Avatar                string     `json:"avatar"`
	IsActive              bool       `json:"is_active" gorm:"not null"`
	LastLogin             *time.Time `json:"last_login,omitempty"`
	ResetPasswordToken    string     `json:"-" gorm:"size:64;index"`
	ResetPasswordExpire   *time.Time `json:"-"`
	GoogleAccessToken     string     `json:"-"`
	GoogleRefreshToken    string     `json:"-"`
	GoogleTokenExpiry     *time.Time `json:"-"`
	GoogleCalendarEnabled bool       `json:"google_calendar_enabled"`
	GoogleLastSyncedAt    *time.Time `json:"google_last_synced_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	// UUID version 4
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	user.Email = NormalizeEmail(user.Email)
	return
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (user *User) FullName() string {
	return user.FirstName + " " + user.LastName
}

func (user *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	return nil
}

func (user *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(user.Password, []byte(password))
}

// CreatePasswordResetToken generates a reset token, stores its sha256 hash on the user and
// returns the plain token for delivery.
func (user *User) CreatePasswordResetToken(now time.Time) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)
	expire := now.Add(passwordResetLifetime)
	user.ResetPasswordToken = HashResetToken(token)
	user.ResetPasswordExpire = &expire
	return token, nil
}

func (user *User) ClearPasswordResetToken() {
	user.ResetPasswordToken = ""
	user.ResetPasswordExpire = nil
}

func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HasGoogleCalendar reports whether the user linked a Google account with calendar access.
func (user *User) HasGoogleCalendar() bool {
	return user.GoogleCalendarEnabled && user.GoogleRefreshToken != ""
}

func (user *User) DisconnectGoogle() {
	user.GoogleAccessToken = ""
	user.GoogleRefreshToken = ""
	user.GoogleTokenExpiry = nil
	user.GoogleCalendarEnabled = false
}
