package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diyoloji/support-engine/internal/category"
	"github.com/diyoloji/support-engine/internal/llm"
	"github.com/diyoloji/support-engine/internal/observability"
)

// Sentiment of a query or answer.
type Sentiment string

const (
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
)

// Valid reports whether s is one of the three recognized sentiments.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentNegative, SentimentNeutral, SentimentPositive:
		return true
	}
	return false
}

// sentimentAliases maps Turkish and shorthand sentiment labels, which the
// model occasionally emits despite instructions, onto the canonical set.
var sentimentAliases = map[string]Sentiment{
	"negatif":        SentimentNegative,
	"olumsuz":        SentimentNegative,
	"pozitif":        SentimentPositive,
	"olumlu":         SentimentPositive,
	"nötr":           SentimentNeutral,
	"notr":           SentimentNeutral,
	"bilgilendirici": SentimentNeutral,
	"bilgi":          SentimentNeutral,
	"info":           SentimentNeutral,
}

// NormalizeSentiment folds aliases onto the canonical sentiment values,
// falling back to def when the input is unrecognized.
func NormalizeSentiment(raw string, def Sentiment) Sentiment {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return def
	}
	if Sentiment(s).Valid() {
		return Sentiment(s)
	}
	if mapped, ok := sentimentAliases[s]; ok {
		return mapped
	}
	return def
}

var negativeTerms = []string{
	"şikayet", "sikayet", "yüksek geldi", "yuksek geldi", "haksız", "sorun",
	"çalışmıyor", "calismiyor", "iptal etmek istiyorum", "memnun değilim",
}

var positiveTerms = []string{
	"teşekkür", "tesekkur", "harika", "çalıştı", "calisti", "süper", "super",
}

const systemPrompt = "Yalnızca JSON döndür. Keys: intent, sentiment.\n" +
	"intent ∈ [billing, roaming, package, coverage, app, other]\n" +
	"sentiment ∈ [negative, neutral, positive]"

// Classifier resolves a query's intent and sentiment. Keyword rules run
// first; the model is consulted only when they say nothing, keeping the
// common path free of a network call.
type Classifier struct {
	client llm.Client
	logger *observability.Logger
}

// NewClassifier builds a classifier. A nil client disables the model
// fallback, leaving only the keyword path.
func NewClassifier(client llm.Client, logger *observability.Logger) *Classifier {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Classifier{client: client, logger: logger}
}

// Classify applies, in priority order: negative keyword match, positive
// keyword match, keyword route alone, model call, and finally a neutral
// keyword-route fallback when the model call fails. Intent is always in
// the closed category set plus "other".
func (c *Classifier) Classify(ctx context.Context, query string) (string, Sentiment) {
	folded := category.Fold(query)
	route, routed := category.Route(query)

	intent := "other"
	if routed {
		intent = string(route)
	}

	for _, term := range negativeTerms {
		if strings.Contains(folded, term) {
			return intent, SentimentNegative
		}
	}
	for _, term := range positiveTerms {
		if strings.Contains(folded, term) {
			return intent, SentimentPositive
		}
	}
	if routed {
		return intent, SentimentNeutral
	}

	if c.client != nil {
		if llmIntent, sentiment, err := c.classifyLLM(ctx, query); err == nil {
			return llmIntent, sentiment
		} else {
			c.logger.Warn().Err(err).Msg("Model classification failed, using keyword fallback")
		}
	}
	return intent, SentimentNeutral
}

func (c *Classifier) classifyLLM(ctx context.Context, query string) (string, Sentiment, error) {
	content, err := c.client.ChatJSON(ctx, systemPrompt, query)
	if err != nil {
		return "", "", err
	}

	var parsed struct {
		Intent    string `json:"intent"`
		Sentiment string `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", "", fmt.Errorf("parse classification: %w", err)
	}
	if !category.ValidIntent(category.Tool(parsed.Intent)) {
		return "", "", fmt.Errorf("classification intent %q outside closed set", parsed.Intent)
	}

	return parsed.Intent, NormalizeSentiment(parsed.Sentiment, SentimentNeutral), nil
}
