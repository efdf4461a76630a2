package models

import "time"

// IdempotencyKey remembers the response a user got for a keyed mutating request, so a
// retry with the same key replays it instead of running the handler again.
type IdempotencyKey struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	UserID         string     `json:"user_id" gorm:"size:36;uniqueIndex:idx_idempotency_user_key"`
	Key            string     `json:"key" gorm:"size:128;uniqueIndex:idx_idempotency_user_key"`
	RequestHash    string     `json:"request_hash" gorm:"size:64"`
	Method         string     `json:"method" gorm:"size:10"`
	Path           string     `json:"path" gorm:"size:255"`
	ResponseStatus int        `json:"response_status"`
	ResponseBody   []byte     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// Completed reports whether a response has been stored. Until then the key is pending.
func (k *IdempotencyKey) Completed() bool {
	return k.ResponseStatus != 0
}
