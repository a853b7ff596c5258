package answer

import (
	"fmt"
	"strings"

	"github.com/diyoloji/support-engine/internal/retrieval"
)

const (
	// Character budget for one context block's excerpt.
	excerptBudget = 1400
	// Block counts for the primary attempt and the shrunk retry.
	smallBlockLimit = 4
	tinyBlockLimit  = 2

	blockSeparator = "\n\n---\n\n"
	emptyContext   = "(no context)"
)

// Context is the bounded prompt context assembled from ranked hits.
// urls runs parallel to blocks so shrinking keeps citations consistent.
type Context struct {
	blocks []string
	urls   []string
}

// Assemble formats one block per hit with a non-empty URL, containing the
// hit's category, its normalized score, and a truncated excerpt.
func Assemble(hits []retrieval.RankedHit) Context {
	var ctx Context
	for _, h := range hits {
		url := strings.TrimSpace(h.URL)
		if url == "" {
			continue
		}

		cat := h.Category
		if cat == "" {
			cat = "unknown"
		}
		ctx.blocks = append(ctx.blocks, fmt.Sprintf(
			"[Kategori: %s | Benzerlik≈%.2f] URL: %s\nTEXT: %s",
			cat, h.NormalizedScore, url, Truncate(strings.TrimSpace(h.Text), excerptBudget),
		))
		ctx.urls = append(ctx.urls, url)
	}
	return ctx
}

// Text joins the blocks, or names the absence of context explicitly so the
// model is never handed an empty string.
func (c Context) Text() string {
	if len(c.blocks) == 0 {
		return emptyContext
	}
	return strings.Join(c.blocks, blockSeparator)
}

// Citations returns the block URLs deduplicated in first-seen order.
func (c Context) Citations() []string {
	return Dedup(c.urls)
}

// Blocks reports how many blocks the context holds.
func (c Context) Blocks() int {
	return len(c.blocks)
}

// Small restricts the context to the first few blocks for the primary
// generation attempt. Large contexts are retry material, not the default.
func (c Context) Small() Context {
	return c.limit(smallBlockLimit)
}

// Tiny shrinks further for the last model retry.
func (c Context) Tiny() Context {
	return c.limit(tinyBlockLimit)
}

func (c Context) limit(n int) Context {
	if len(c.blocks) <= n {
		return c
	}
	return Context{blocks: c.blocks[:n], urls: c.urls[:n]}
}

// Truncate caps s at max characters, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// Dedup removes duplicates and empty entries, keeping first-seen order.
func Dedup(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
