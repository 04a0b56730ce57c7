package middleware

import (
	"errors"
	"strings"
	"time"

	"sktutorials_go/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

// Staff roles carried in the token.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStaff   = "staff"
)

const (
	claimsLocal = "claims"
	tokenIssuer = "sktutorials"
)

var (
	errNoRole        = errors.New("token carries no role")
	errUnknownRole   = errors.New("token carries an unknown role")
	errSigningMethod = errors.New("unexpected signing method")

	knownRoles = map[string]bool{RoleOwner: true, RoleAdmin: true, RoleTeacher: true, RoleStaff: true}
)

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for a staff identity. Accounts live with the
// identity provider; this is used by tooling and tests.
func GenerateToken(userID uint, username, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(config.AppConfig.JWTExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.AppConfig.JWTSecret))
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errSigningMethod
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	switch {
	case claims.Role == "":
		return nil, errNoRole
	case !knownRoles[claims.Role]:
		return nil, errUnknownRole
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func deny(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// JWTMiddleware requires a valid bearer token and stores its claims on the
// request.
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return deny(c, fiber.StatusUnauthorized, "Missing authorization header")
		}
		raw, ok := bearerToken(header)
		if !ok {
			return deny(c, fiber.StatusUnauthorized, "Invalid authorization header format")
		}
		claims, err := ParseToken(raw)
		if err != nil {
			return deny(c, fiber.StatusUnauthorized, "Invalid token")
		}
		c.Locals(claimsLocal, claims)
		return c.Next()
	}
}

// RequireRole lets through only the listed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(claimsLocal).(*Claims)
		if !ok {
			return deny(c, fiber.StatusUnauthorized, "Missing user claims")
		}
		if !allowed[claims.Role] {
			return deny(c, fiber.StatusForbidden, "Insufficient permissions")
		}
		return c.Next()
	}
}

// RequireOwnerOrAdmin guards settings, imports and reminder runs.
func RequireOwnerOrAdmin() fiber.Handler {
	return RequireRole(RoleOwner, RoleAdmin)
}

// RequireStaff allows every back-office role that may handle fees.
func RequireStaff() fiber.Handler {
	return RequireRole(RoleStaff, RoleAdmin, RoleOwner)
}

func RequireTeacherOrAbove() fiber.Handler {
	return RequireRole(RoleTeacher, RoleStaff, RoleAdmin, RoleOwner)
}

func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals(claimsLocal).(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}
