package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader  = "Idempotency-Key"
	replayedHeader     = "Idempotent-Replayed"
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

type entryState string

const (
	entryPending entryState = "pending"
	entryDone    entryState = "done"
)

// idempotencyEntry is what the key holds: a pending marker while the first
// request runs, then the captured response.
type idempotencyEntry struct {
	State       entryState      `json:"state"`
	StatusCode  int             `json:"status_code,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware makes mutating requests carrying an Idempotency-Key
// safe to retry. The first request claims the key; a retry while it is
// still running gets 409, and a retry after it finished gets the stored
// response. Keys are scoped to the authenticated actor, so it must run
// after Authenticate. A nil client disables the middleware.
func IdempotencyMiddleware(client *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !mutating(c.Request.Method) {
			c.Next()
			return
		}
		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyCacheKey(c, key)

		claimed, err := claimKey(ctx, client, cacheKey)
		if err != nil {
			// Redis is down: serve without replay.
			c.Next()
			return
		}
		if !claimed {
			entry, err := loadEntry(ctx, client, cacheKey)
			switch {
			case errors.Is(err, redis.Nil):
				// Released between claim and load; let the client retry.
				abortInProgress(c)
			case err != nil:
				c.Next()
			case entry.State == entryPending:
				abortInProgress(c)
			default:
				c.Header(replayedHeader, "true")
				c.Data(entry.StatusCode, entry.ContentType, entry.Body)
				c.Abort()
			}
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			// Server errors are retryable.
			_ = client.Del(context.WithoutCancel(ctx), cacheKey).Err()
			return
		}
		_ = storeEntry(context.WithoutCancel(ctx), client, cacheKey, idempotencyEntry{
			State:       entryDone,
			StatusCode:  status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func idempotencyCacheKey(c *gin.Context, key string) string {
	scope := "anonymous"
	if actor, ok := ActorFrom(c); ok {
		scope = actor.TenantID + ":" + actor.ID
	}
	return "idempotency:" + scope + ":" + c.Request.Method + ":" + c.FullPath() + ":" + key
}

func claimKey(ctx context.Context, client *redis.Client, key string) (bool, error) {
	data, err := json.Marshal(idempotencyEntry{State: entryPending})
	if err != nil {
		return false, err
	}
	return client.SetNX(ctx, key, data, idempotencyLockTTL).Result()
}

func loadEntry(ctx context.Context, client *redis.Client, key string) (*idempotencyEntry, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var entry idempotencyEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func storeEntry(ctx context.Context, client *redis.Client, key string, entry idempotencyEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, idempotencyTTL).Err()
}

func abortInProgress(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusConflict, gin.H{
		"code":  "IDEMPOTENCY_IN_PROGRESS",
		"error": "a request with this idempotency key is still running",
	})
}
