package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"crm-backend/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const idempotencyHeader = "Idempotency-Key"

// Idempotency processes Idempotency-Key for mutating HTTP methods. The first completed
// (non-5xx) response is stored per user and key and replayed for identical retries; a key
// reused for a different request is rejected with 409.
// Order: run AFTER IsAuthenticatedHeader().
func Idempotency(db *gorm.DB, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		userID, _ := c.Locals(localUserID).(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "auth context missing")
		}

		db := db.WithContext(c.UserContext())
		path := c.OriginalURL() // includes query string
		reqHash := requestHash(method, path, c.Body(), userID)

		// ---- Phase 1: read or create the "pending" record
		var existing models.IdempotencyKey
		created := false
		err := db.Where("key = ? AND user_id = ?", key, userID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec := models.IdempotencyKey{
				Key:         key,
				UserID:      userID,
				RequestHash: reqHash,
				Method:      method,
				Path:        path,
			}
			if err = db.Create(&rec).Error; err == nil {
				existing = rec
				created = true
			} else {
				// unique race: another request created it first
				err = db.Where("key = ? AND user_id = ?", key, userID).First(&existing).Error
			}
		}
		if err != nil {
			return err
		}

		if existing.RequestHash != reqHash {
			return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
		}
		if existing.Completed() {
			// completed earlier: replay without running the handler
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
			c.Set("Idempotent-Replayed", "true")
			return c.Status(existing.ResponseStatus).Send(existing.ResponseBody)
		}
		if !created {
			return fiber.NewError(fiber.StatusConflict, "a request with this Idempotency-Key is still in progress")
		}

		// ---- Run the handler once
		if err := c.Next(); err != nil {
			// failed requests may be retried with the same key
			releaseKey(db, log, existing.ID, key)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			releaseKey(db, log, existing.ID, key)
			return nil
		}

		// ---- Phase 2: store the response (best-effort)
		now := time.Now().UTC()
		resp := c.Response().Body()
		blob := make([]byte, len(resp))
		copy(blob, resp)
		if err := db.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"response_status": status,
				"response_body":   blob,
				"completed_at":    &now,
			}).Error; err != nil {
			log.Warn("idempotency store failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
}

// releaseKey drops a pending key. A failed delete leaves the key pending, so it is logged.
func releaseKey(db *gorm.DB, log *zap.Logger, id uint, key string) {
	if err := db.Where("id = ?", id).Delete(&models.IdempotencyKey{}).Error; err != nil {
		log.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
	}
}

// requestHash is sha256 of method|path|body|user.
func requestHash(method, path string, body []byte, userID string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	h.Write([]byte{'\n'})
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil))
}
