// internal/server/idempotency.go

package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"moneytransfer/internal/bank"
)

const (
	// IdempotencyHeader is the standard HTTP header for idempotency keys.
	IdempotencyHeader = "Idempotency-Key"

	// IdempotencyHitHeader marks a response replayed from the cache.
	IdempotencyHitHeader = "X-Idempotency-Hit"

	defaultIdempotencyTTL = 24 * time.Hour

	// idempotencyLockTimeout prevents indefinite locks if a request crashes.
	idempotencyLockTimeout = 10 * time.Second

	idempotencyKeyPrefix  = "idempotency:"
	idempotencyLockPrefix = "lock:idempotency:"
)

// cachedResponse is what gets stored in Redis for a completed request.
// Fingerprint is the SHA-256 of the request body that produced it.
type cachedResponse struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// idempotency replays the cached response for a repeated Idempotency-Key.
//
// Flow:
//  1. No key, or Redis not configured: pass through.
//  2. Cache hit: replay the stored 2xx response with X-Idempotency-Hit,
//     or 422 when the key is reused with a different body.
//  3. SetNX a short-lived lock; a concurrent request with the same key gets 409.
//  4. Check the cache again under the lock: a request that missed the cache
//     may acquire the lock only after the first one cached and released it.
//  5. Run the handler, cache 2xx responses for the configured TTL.
//
// Redis failures fail closed with 500 so a retried transfer is never applied twice.
func (s *Server) idempotency(next http.Handler) http.Handler {
	if s.rdb == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithoutCancel(r.Context())
		log := s.logger.With(zap.String("idempotency_key", key))
		cacheKey := idempotencyKeyPrefix + key
		lockKey := idempotencyLockPrefix + key

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			writeErr(w, &bank.Error{Code: bank.CodeMalformedInput, Field: "body", Message: err.Error()})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		sum := sha256.Sum256(raw)
		fingerprint := hex.EncodeToString(sum[:])

		if s.replayCached(ctx, w, log, cacheKey, fingerprint) {
			return
		}

		acquired, err := s.rdb.SetNX(ctx, lockKey, "processing", idempotencyLockTimeout).Result()
		if err != nil {
			log.Error("idempotency lock acquisition failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "idempotency store unavailable"})
			return
		}
		if !acquired {
			log.Info("concurrent request with same idempotency key")
			writeJSON(w, http.StatusConflict, errorResponse{
				Code:    "IDEMPOTENCY_CONFLICT",
				Message: "a request with this idempotency key is currently being processed",
			})
			return
		}
		defer func() {
			if err := s.rdb.Del(ctx, lockKey).Err(); err != nil {
				log.Warn("failed to release idempotency lock", zap.Error(err))
			}
		}()

		if s.replayCached(ctx, w, log, cacheKey, fingerprint) {
			return
		}

		var body bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&body)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status < 200 || status >= 300 {
			return
		}
		payload, err := json.Marshal(cachedResponse{Status: status, Body: body.String(), Fingerprint: fingerprint})
		if err != nil {
			log.Error("failed to encode idempotency cache entry", zap.Error(err))
			return
		}
		if err := s.rdb.Set(ctx, cacheKey, payload, s.ttl).Err(); err != nil {
			log.Warn("failed to cache idempotent response", zap.Error(err))
			return
		}
		log.Debug("cached idempotent response", zap.Duration("ttl", s.ttl))
	})
}

// replayCached writes the response for cacheKey and reports true when the
// request has been answered: a replay, a key reuse, or a Redis failure.
// A cache miss writes nothing and returns false.
func (s *Server) replayCached(ctx context.Context, w http.ResponseWriter, log *zap.Logger, cacheKey, fingerprint string) bool {
	raw, err := s.rdb.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		log.Error("idempotency cache lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "idempotency store unavailable"})
		return true
	}

	var cached cachedResponse
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		log.Error("idempotency cache entry is corrupt", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal error"})
		return true
	}
	if cached.Fingerprint != fingerprint {
		log.Info("idempotency key reused with a different request body")
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "IDEMPOTENCY_KEY_REUSED",
			Message: "idempotency key was already used for a different request",
		})
		return true
	}

	log.Debug("idempotency cache hit")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(IdempotencyHitHeader, "true")
	w.WriteHeader(cached.Status)
	_, _ = w.Write([]byte(cached.Body))
	return true
}
