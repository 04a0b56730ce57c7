package middleware

import (
	"context"
	"fmt"
	"time"

	"sktutorials_go/database"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 10 * time.Minute
)

// Idempotency rejects a repeated write carrying an Idempotency-Key already
// seen from the same user in the last ten minutes. Requests without the
// header, and every request while Redis is unavailable, pass through.
func Idempotency() fiber.Handler {
	return IdempotencyWith(database.GetRedisClient)
}

// KeyClaimer reserves idempotency keys. Claim reports false when the key is
// already held.
type KeyClaimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisClaimer struct {
	rdb *redis.Client
}

func (r redisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

func (r redisClaimer) Release(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// IdempotencyWith is Idempotency with an explicit client source.
func IdempotencyWith(client func() *redis.Client) fiber.Handler {
	return IdempotencyClaimer(func() KeyClaimer {
		if rdb := client(); rdb != nil {
			return redisClaimer{rdb: rdb}
		}
		return nil
	})
}

// IdempotencyClaimer guards writes with keys held by the claimer that source
// returns; a nil claimer lets every request through.
func IdempotencyClaimer(source func() KeyClaimer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(IdempotencyHeader)
		if key == "" {
			return c.Next()
		}
		claimer := source()
		if claimer == nil {
			return c.Next()
		}

		var userID uint
		if claims, err := GetCurrentClaims(c); err == nil {
			userID = claims.UserID
		}
		heldKey := fmt.Sprintf("idem:%d:%s:%s", userID, c.Path(), key)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		fresh, err := claimer.Claim(ctx, heldKey, idempotencyTTL)
		if err != nil {
			logrus.WithError(err).Warn("Idempotency check skipped")
			return c.Next()
		}
		if !fresh {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Duplicate request",
				"key":   key,
			})
		}

		err = c.Next()
		if err != nil || c.Response().StatusCode() >= 400 {
			// failed attempts may be retried with the same key
			if rerr := claimer.Release(context.Background(), heldKey); rerr != nil {
				logrus.WithError(rerr).Warn("Idempotency key not released")
			}
		}
		return err
	}
}
