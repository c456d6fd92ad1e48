package middleware

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "offramp:idem:v2:"
	maxIdempotencyKey    = 255
	idempotencyOpTimeout = 2 * time.Second
)

// idempotencyRecord is either a reservation (Status zero) or a settled response.
type idempotencyRecord struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type idempotencyStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Idempotency guards provisioning requests with the Idempotency-Key header. Keys are scoped to
// the caller, method and path. A settled response is replayed for the same request body; a
// different body under the same key is rejected. Errors and 5xx responses release the key so the
// client can retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := &idempotencyStore{cache: cache, ttl: ttl, logger: logger}

	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		switch {
		case key == "":
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		case len(key) > maxIdempotencyKey:
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		subject, _ := c.Locals("user_id").(string)
		cacheKey := idempotencyPrefix + subject + ":" + c.Method() + ":" + c.Path() + ":" + key
		hash := requestHash(c.Body())

		rec, found, err := store.lookup(cacheKey)
		if err != nil {
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if found {
			return replay(c, rec, hash)
		}

		reserved, err := store.reserve(cacheKey, hash)
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil || c.Response().StatusCode() >= fiber.StatusInternalServerError {
			store.release(cacheKey)
			return err
		}

		settled := idempotencyRecord{
			RequestHash: hash,
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		if err := store.complete(cacheKey, settled); err != nil {
			logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			store.release(cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}
		return nil
	}
}

func replay(c *fiber.Ctx, rec idempotencyRecord, hash string) error {
	if rec.RequestHash != hash {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request")
	}
	if rec.Status == 0 {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}
	if rec.ContentType != "" {
		c.Set(fiber.HeaderContentType, rec.ContentType)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(rec.Status).Send(rec.Body)
}

func requestHash(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (s *idempotencyStore) lookup(key string) (idempotencyRecord, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyOpTimeout)
	defer cancel()

	raw, err := s.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return idempotencyRecord{}, false, nil
	}
	if err != nil {
		return idempotencyRecord{}, false, err
	}
	var rec idempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return idempotencyRecord{}, false, err
	}
	return rec, true, nil
}

func (s *idempotencyStore) reserve(key, hash string) (bool, error) {
	payload, err := json.Marshal(idempotencyRecord{RequestHash: hash})
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyOpTimeout)
	defer cancel()
	return s.cache.SetNX(ctx, key, payload, s.ttl).Result()
}

func (s *idempotencyStore) complete(key string, rec idempotencyRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyOpTimeout)
	defer cancel()
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func (s *idempotencyStore) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyOpTimeout)
	defer cancel()
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("idempotency release failed", slog.Any("error", err))
	}
}
