package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"sktutorials_go/config"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestConfig(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig = &config.Config{JWTSecret: "test-secret-0123456789", JWTExpiresIn: time.Hour}
	t.Cleanup(func() { config.AppConfig = prev })
}

func newAuthApp() *fiber.App {
	app := fiber.New()
	app.Get("/fees", JWTMiddleware(), RequireStaff(), func(c *fiber.Ctx) error {
		claims, err := GetCurrentClaims(c)
		if err != nil {
			return err
		}
		return c.SendString(claims.Username)
	})
	return app
}

func TestJWTMiddleware(t *testing.T) {
	setTestConfig(t)
	app := newAuthApp()

	staff, err := GenerateToken(7, "meena", RoleStaff)
	require.NoError(t, err)
	teacher, err := GenerateToken(8, "ravi", RoleTeacher)
	require.NoError(t, err)
	parent, err := GenerateToken(9, "parent", "guardian")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", header: "", want: fiber.StatusUnauthorized},
		{name: "not bearer", header: staff, want: fiber.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc.def.ghi", want: fiber.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + teacher, want: fiber.StatusForbidden},
		{name: "unknown role", header: "Bearer " + parent, want: fiber.StatusUnauthorized},
		{name: "staff", header: "Bearer " + staff, want: fiber.StatusOK},
		{name: "lowercase scheme", header: "bearer " + staff, want: fiber.StatusOK},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/fees", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	setTestConfig(t)
	token, err := GenerateToken(1, "owner", RoleOwner)
	require.NoError(t, err)

	config.AppConfig.JWTSecret = "another-secret-0123456789"
	_, err = ParseToken(token)

	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("  Bearer   abc.def  ")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	_, ok = bearerToken("Basic dXNlcjpwYXNz")
	assert.False(t, ok)
	_, ok = bearerToken("Bearer ")
	assert.False(t, ok)
}

func TestResourceFromPath(t *testing.T) {
	assert.Equal(t, "fees", resourceFromPath("/api/fees/payments"))
	assert.Equal(t, "students", resourceFromPath("/api/students/4/installments"))
	assert.Equal(t, "line", resourceFromPath("/line/webhook"))
	assert.Equal(t, "UPDATE", actionFor("PATCH"))
	assert.Equal(t, "", actionFor("OPTIONS"))
}

func TestIdempotencyWithoutRedisPassesThrough(t *testing.T) {
	app := fiber.New()
	calls := 0
	app.Post("/pay", IdempotencyWith(func() *redis.Client { return nil }), func(c *fiber.Ctx) error {
		calls++
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/pay", nil)
		req.Header.Set(IdempotencyHeader, "abc")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}
	assert.Equal(t, 2, calls)
}

type memoryClaimer struct {
	held     map[string]time.Duration
	claimErr error
}

func (m *memoryClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	if _, ok := m.held[key]; ok {
		return false, nil
	}
	m.held[key] = ttl
	return true, nil
}

func (m *memoryClaimer) Release(ctx context.Context, key string) error {
	delete(m.held, key)
	return nil
}

func TestIdempotencyWithClaimer(t *testing.T) {
	claimer := &memoryClaimer{held: map[string]time.Duration{}}
	calls := map[string]int{}
	app := fiber.New()
	guard := IdempotencyClaimer(func() KeyClaimer { return claimer })
	app.Post("/pay", guard, func(c *fiber.Ctx) error {
		calls["/pay"]++
		return c.SendStatus(fiber.StatusCreated)
	})
	app.Post("/refund", guard, func(c *fiber.Ctx) error {
		calls["/refund"]++
		return c.SendStatus(fiber.StatusCreated)
	})
	app.Post("/broken", guard, func(c *fiber.Ctx) error {
		calls["/broken"]++
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db down"})
	})
	app.Post("/panicky", guard, func(c *fiber.Ctx) error {
		calls["/panicky"]++
		return fiber.NewError(fiber.StatusBadGateway, "gateway")
	})

	steps := []struct {
		name  string
		path  string
		key   string
		want  int
		calls int
	}{
		{name: "first attempt", path: "/pay", key: "k1", want: fiber.StatusCreated, calls: 1},
		{name: "replayed key", path: "/pay", key: "k1", want: fiber.StatusConflict, calls: 1},
		{name: "no key", path: "/pay", key: "", want: fiber.StatusCreated, calls: 2},
		{name: "same key other route", path: "/refund", key: "k1", want: fiber.StatusCreated, calls: 1},
		{name: "failed attempt", path: "/broken", key: "k2", want: fiber.StatusInternalServerError, calls: 1},
		{name: "retry after failure", path: "/broken", key: "k2", want: fiber.StatusInternalServerError, calls: 2},
		{name: "handler error", path: "/panicky", key: "k3", want: fiber.StatusBadGateway, calls: 1},
		{name: "retry after handler error", path: "/panicky", key: "k3", want: fiber.StatusBadGateway, calls: 2},
	}
	for _, st := range steps {
		req := httptest.NewRequest("POST", st.path, nil)
		if st.key != "" {
			req.Header.Set(IdempotencyHeader, st.key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		if resp.StatusCode != st.want {
			t.Fatalf("%s: expected %d, got %d", st.name, st.want, resp.StatusCode)
		}
		if calls[st.path] != st.calls {
			t.Fatalf("%s: handler ran %d times, want %d", st.name, calls[st.path], st.calls)
		}
	}

	assert.Equal(t, map[string]time.Duration{
		"idem:0:/pay:k1":    idempotencyTTL,
		"idem:0:/refund:k1": idempotencyTTL,
	}, claimer.held)
}

func TestIdempotencyClaimErrorPassesThrough(t *testing.T) {
	claimer := &memoryClaimer{held: map[string]time.Duration{}, claimErr: errors.New("i/o timeout")}
	app := fiber.New()
	app.Post("/pay", IdempotencyClaimer(func() KeyClaimer { return claimer }), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/pay", nil)
		req.Header.Set(IdempotencyHeader, "abc")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}
}
