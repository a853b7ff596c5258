package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diyoloji/support-engine/internal/category"
	"github.com/diyoloji/support-engine/internal/classify"
	"github.com/diyoloji/support-engine/internal/llm"
	"github.com/diyoloji/support-engine/internal/observability"
)

// Substituted when the model returns a structurally valid answer with an
// empty answer string.
const limitedContextAnswer = "Bağlam sınırlı; aşağıdaki adımları deneyebilirsin."

// GeneratedAnswer is the pipeline's final product. Tool and intent are
// always members of their closed sets by the time a value leaves this
// package.
type GeneratedAnswer struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	Tool      string   `json:"tool"`
	Intent    string   `json:"intent"`
	Sentiment string   `json:"sentiment"`
}

// Request carries everything one generation needs.
type Request struct {
	Query      string
	History    string
	Context    Context
	ChosenTool string
	Intent     string
	Sentiment  classify.Sentiment
}

const structuredSystemPrompt = "You are Diyoloji. Yanıtını **yalnızca Türkçe** ver.\n" +
	"Sadece CONTEXT'i kullan; uydurma bilgi verme. Yetersizse net söyle ve sonraki adımı öner.\n" +
	"Kısa, maddeli ve eyleme dönük yaz. Çıktıyı JSON üret (answer, citations, tool, intent, sentiment)."

const jsonSystemPrompt = "You are Diyoloji. Answer ONLY in Turkish. Use ONLY the given CONTEXT; " +
	"if insufficient, say so and propose the closest next step. " +
	"Return JSON only: {answer:str, citations:list[str], tool:str, intent:str, sentiment:str}. " +
	"STYLE: bullets for steps; short, actionable."

// Generator walks a fixed sequence of generation attempts: a structured
// call, a plain JSON call, a JSON retry on a shrunk context, and finally a
// deterministic rules answer. Each attempt runs only when the previous one
// failed, and the rules answer cannot fail, so Generate always returns a
// valid value.
type Generator struct {
	client llm.Client
	logger *observability.Logger
}

// NewGenerator wires a generator. A nil client jumps straight to the
// rules fallback, which some deployments use as an offline mode.
func NewGenerator(client llm.Client, logger *observability.Logger) *Generator {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Generator{client: client, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, req Request) GeneratedAnswer {
	small := req.Context.Small()

	if g.client != nil {
		if out, err := g.structuredAttempt(ctx, req, small); err == nil {
			return out
		} else {
			g.logger.Warn().Err(err).Msg("Structured generation failed, trying JSON mode")
		}

		user := g.userPrompt(req, small, true)
		if out, err := g.jsonAttempt(ctx, req, small, user); err == nil {
			return out
		} else {
			g.logger.Warn().Err(err).Msg("JSON generation failed, retrying with tiny context")
		}

		tiny := req.Context.Tiny()
		retryUser := fmt.Sprintf("KULLANICI SORUSU:\n%s\n\nCONTEXT:\n%s", req.Query, tiny.Text())
		if out, err := g.jsonAttempt(ctx, req, small, retryUser); err == nil {
			return out
		} else {
			g.logger.Warn().Err(err).Msg("JSON retry failed, using rules fallback")
		}
	}

	return g.rulesFallback(req, small)
}

func (g *Generator) userPrompt(req Request, ctx Context, labelledHistory bool) string {
	var b strings.Builder
	if req.History != "" {
		if labelledHistory {
			fmt.Fprintf(&b, "ÖNCEKİ KONUŞMA (kısa):\n%s\n\n", req.History)
		} else {
			fmt.Fprintf(&b, "KISA GEÇMİŞ:\n%s\n\n", req.History)
		}
	}
	fmt.Fprintf(&b, "KULLANICI SORUSU:\n%s\n\nCONTEXT:\n%s", req.Query, ctx.Text())
	return b.String()
}

func (g *Generator) structuredAttempt(ctx context.Context, req Request, small Context) (GeneratedAnswer, error) {
	content, err := g.client.ChatStructured(ctx, structuredSystemPrompt,
		g.userPrompt(req, small, false), "support_answer", GeneratedAnswer{})
	if err != nil {
		return GeneratedAnswer{}, err
	}

	var parsed GeneratedAnswer
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return GeneratedAnswer{}, fmt.Errorf("parse structured answer: %w", err)
	}
	// The structured path trusts the classifier over the model for intent
	// and sentiment.
	parsed.Intent = req.Intent
	parsed.Sentiment = string(req.Sentiment)
	return g.coerce(parsed, req, small), nil
}

func (g *Generator) jsonAttempt(ctx context.Context, req Request, small Context, user string) (GeneratedAnswer, error) {
	content, err := g.client.ChatJSON(ctx, jsonSystemPrompt, user)
	if err != nil {
		return GeneratedAnswer{}, err
	}

	var parsed GeneratedAnswer
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return GeneratedAnswer{}, fmt.Errorf("parse JSON answer: %w", err)
	}
	if parsed.Intent == "" {
		parsed.Intent = req.Intent
	}
	if parsed.Sentiment == "" {
		parsed.Sentiment = string(req.Sentiment)
	}
	return g.coerce(parsed, req, small), nil
}

// coerce applies the field invariants every successful exit must satisfy:
// tool and intent inside their closed sets, a non-blank answer, citations
// defaulting to the small-context citations, and a canonical sentiment.
func (g *Generator) coerce(out GeneratedAnswer, req Request, small Context) GeneratedAnswer {
	if !category.Valid(category.Tool(out.Tool)) {
		if category.Valid(category.Tool(req.ChosenTool)) {
			out.Tool = req.ChosenTool
		} else {
			out.Tool = string(category.ToolOther)
		}
	}
	if !category.ValidIntent(category.Tool(out.Intent)) {
		out.Intent = string(category.ToolOther)
	}
	out.Sentiment = string(classify.NormalizeSentiment(out.Sentiment, req.Sentiment))
	if strings.TrimSpace(out.Answer) == "" {
		out.Answer = limitedContextAnswer
	} else {
		out.Answer = strings.TrimSpace(out.Answer)
	}
	if len(out.Citations) == 0 {
		out.Citations = small.Citations()
	} else {
		out.Citations = Dedup(out.Citations)
	}
	return out
}

// rulesFallback composes the deterministic template answer. Sentiment
// defaults to negative: reaching this state means generation kept failing.
func (g *Generator) rulesFallback(req Request, small Context) GeneratedAnswer {
	tool := string(category.ToolOther)
	if category.Valid(category.Tool(req.ChosenTool)) {
		tool = req.ChosenTool
	}
	return GeneratedAnswer{
		Answer:    renderFallback(tool),
		Citations: small.Citations(),
		Tool:      tool,
		Intent:    tool,
		Sentiment: string(classify.SentimentNegative),
	}
}
