package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diyoloji/support-engine/internal/answer"
	"github.com/diyoloji/support-engine/internal/category"
)

// AnswerCache memoizes generated answers by query and resolved tool.
// Follow-up questions in a session bypass it because history changes the
// prompt; only history-free queries are keyed here.
type AnswerCache struct {
	client Client
	ttl    time.Duration
}

// NewAnswerCache wraps a byte cache. A nil client disables caching, and
// both methods become no-ops.
func NewAnswerCache(client Client, ttl time.Duration) *AnswerCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &AnswerCache{client: client, ttl: ttl}
}

func (c *AnswerCache) key(query, tool string) string {
	sum := md5.Sum([]byte(category.Fold(query) + "|" + tool))
	return fmt.Sprintf("answer:%x", sum)
}

// Get returns the cached answer for (query, tool), or ok=false on a miss.
func (c *AnswerCache) Get(ctx context.Context, query, tool string) (answer.GeneratedAnswer, bool) {
	var out answer.GeneratedAnswer
	if c == nil || c.client == nil {
		return out, false
	}

	data, err := c.client.Get(ctx, c.key(query, tool))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			// Treat backend trouble as a miss; the pipeline still works.
			return out, false
		}
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return answer.GeneratedAnswer{}, false
	}
	return out, true
}

// Put stores an answer, best effort.
func (c *AnswerCache) Put(ctx context.Context, query, tool string, out answer.GeneratedAnswer) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(query, tool), data, c.ttl)
}
