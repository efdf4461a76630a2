package middlewares

import (
	"errors"
	"strings"
	"time"

	"crm-backend/config"
	"crm-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "

	localUser   = "user"
	localUserID = "userID"
)

// Claims is our custom JWT payload (subject=userID, plus role at issue time).
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT signs a new HS256 token for the given user, expiring after cfg.TokenTTL.
func GenerateJWT(cfg config.AuthConfig, user *models.User, now time.Time) (string, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return "", errors.New("JWT secret not configured")
	}
	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseJWT validates raw and returns its claims. Only HS256 is accepted.
func ParseJWT(cfg config.AuthConfig, raw string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("invalid token")
	}
	return &claims, nil
}

// IsAuthenticatedHeader validates a Bearer token, loads the user it names and populates
// c.Locals("user") and c.Locals("userID"). Deactivated users are rejected.
func IsAuthenticatedHeader(db *gorm.DB, cfg config.AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get(authHeader)
		if h == "" || !strings.HasPrefix(strings.ToLower(h), strings.ToLower(bearerPrefix)) {
			return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid Authorization header")
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		claims, err := ParseJWT(cfg, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, "id = ?", claims.Subject).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
			}
			return err
		}
		if !user.IsActive {
			return fiber.NewError(fiber.StatusUnauthorized, "account is deactivated")
		}

		c.Locals(localUser, &user)
		c.Locals(localUserID, user.Id)
		return c.Next()
	}
}

// CurrentUser returns the authenticated user stored by IsAuthenticatedHeader.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localUser).(*models.User)
	return user
}

// RequireRoles rejects users whose role is not in roles with 403.
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		for _, r := range roles {
			if user.Role == r {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "you are not allowed to perform this action")
	}
}
