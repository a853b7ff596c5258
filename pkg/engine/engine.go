// Package engine wires the support pipeline into one facade consumed by
// the API server and the CLI.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/diyoloji/support-engine/internal/answer"
	"github.com/diyoloji/support-engine/internal/cache"
	"github.com/diyoloji/support-engine/internal/category"
	"github.com/diyoloji/support-engine/internal/classify"
	"github.com/diyoloji/support-engine/internal/history"
	"github.com/diyoloji/support-engine/internal/ingest"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/internal/retrieval"
	"github.com/diyoloji/support-engine/internal/safety"
)

const (
	historyLineBudget  = 400
	historyTotalBudget = 1500
)

// Params carries the engine's dependencies. History and Answers may be nil,
// which disables those features.
type Params struct {
	Classifier *classify.Classifier
	Generator  *answer.Generator
	Retriever  *retrieval.Retriever
	Pipeline   *ingest.Pipeline
	History    history.Store
	Safety     safety.Policy
	Answers    *cache.AnswerCache
	MaxTurns   int
	TTLDays    int
	Logger     *observability.Logger
}

// Engine runs queries and ingestion end to end.
type Engine struct {
	p      Params
	logger *observability.Logger
}

// New validates required dependencies and builds the engine.
func New(p Params) (*Engine, error) {
	if p.Classifier == nil {
		return nil, fmt.Errorf("engine: classifier is required")
	}
	if p.Generator == nil {
		return nil, fmt.Errorf("engine: generator is required")
	}
	if p.Retriever == nil {
		return nil, fmt.Errorf("engine: retriever is required")
	}
	if p.MaxTurns <= 0 {
		p.MaxTurns = 4
	}
	if p.TTLDays <= 0 {
		p.TTLDays = 7
	}
	if p.Logger == nil {
		p.Logger = observability.DefaultLogger()
	}
	return &Engine{p: p, logger: p.Logger}, nil
}

// Ask answers one query. forceTool pins the category filter; sessionID
// scopes conversation history and may be empty for a stateless query.
func (e *Engine) Ask(ctx context.Context, query, forceTool, sessionID string) (answer.GeneratedAnswer, error) {
	log := e.logger.WithSession(sessionID)

	e.purgeExpired(ctx)

	result, refuse := e.p.Safety.Evaluate(query)
	if !result.Passed {
		log.Warn().Str("note", result.Note).Bool("refused", refuse).Msg("Input flagged by safety filter")
	}
	if refuse {
		return e.refuse(ctx, query, sessionID), nil
	}

	intent, sentiment := e.p.Classifier.Classify(ctx, query)
	e.appendTurn(ctx, history.Turn{
		SessionID: sessionID, Role: history.RoleUser,
		Content: query, Intent: intent, Sentiment: string(sentiment),
	})

	chosen := e.resolveTool(forceTool, query, intent)
	log.Debug().Str("intent", intent).Str("sentiment", string(sentiment)).Str("tool", chosen).Msg("Resolved query routing")

	// History changes the prompt, so only stateless queries consult the cache.
	cacheable := sessionID == ""
	if cacheable {
		if cached, ok := e.p.Answers.Get(ctx, query, chosen); ok {
			log.Debug().Msg("Answer cache hit")
			return cached, nil
		}
	}

	ranked, err := e.p.Retriever.Retrieve(ctx, query, chosen)
	if err != nil {
		return answer.GeneratedAnswer{}, fmt.Errorf("retrieve context: %w", err)
	}

	out := e.p.Generator.Generate(ctx, answer.Request{
		Query:      query,
		History:    e.historySummary(ctx, sessionID),
		Context:    answer.Assemble(ranked),
		ChosenTool: chosen,
		Intent:     intent,
		Sentiment:  sentiment,
	})

	e.appendTurn(ctx, history.Turn{
		SessionID: sessionID, Role: history.RoleAssistant,
		Content: out.Answer, Intent: out.Intent, Sentiment: out.Sentiment,
		Tool: out.Tool, Citations: out.Citations,
	})
	if cacheable {
		e.p.Answers.Put(ctx, query, chosen, out)
	}
	return out, nil
}

// resolveTool picks the category filter: an explicit override first, then
// the full keyword router, the quick router, and finally the classifier's
// intent when it names a real category.
func (e *Engine) resolveTool(forceTool, query, intent string) string {
	if category.Valid(category.Tool(forceTool)) {
		return forceTool
	}
	if tool, ok := category.Route(query); ok {
		return string(tool)
	}
	if tool, ok := category.QuickRoute(query); ok {
		return string(tool)
	}
	if category.Valid(category.Tool(intent)) {
		return intent
	}
	return ""
}

// refuse short-circuits a hard-failed query with the fixed refusal answer,
// logging the exchange to history like a normal turn.
func (e *Engine) refuse(ctx context.Context, query, sessionID string) answer.GeneratedAnswer {
	out := answer.GeneratedAnswer{
		Answer:    safety.RefusalMessage,
		Citations: []string{},
		Tool:      string(category.ToolOther),
		Intent:    string(category.ToolOther),
		Sentiment: string(classify.SentimentNegative),
	}
	e.appendTurn(ctx, history.Turn{
		SessionID: sessionID, Role: history.RoleUser,
		Content: query, Intent: out.Intent, Sentiment: out.Sentiment,
	})
	e.appendTurn(ctx, history.Turn{
		SessionID: sessionID, Role: history.RoleAssistant,
		Content: out.Answer, Intent: out.Intent, Sentiment: out.Sentiment,
		Tool: out.Tool, Citations: out.Citations,
	})
	return out
}

func (e *Engine) purgeExpired(ctx context.Context) {
	if e.p.History == nil {
		return
	}
	if _, err := e.p.History.Purge(ctx, e.p.TTLDays); err != nil {
		e.logger.Warn().Err(err).Msg("History purge failed")
	}
}

func (e *Engine) appendTurn(ctx context.Context, turn history.Turn) {
	if e.p.History == nil || turn.SessionID == "" {
		return
	}
	if _, err := e.p.History.Append(ctx, turn); err != nil {
		e.logger.Warn().Err(err).Str("role", string(turn.Role)).Msg("Could not write history turn")
	}
}

// historySummary renders the session's recent turns as a compact transcript
// for the prompt, bounded per line and in total.
func (e *Engine) historySummary(ctx context.Context, sessionID string) string {
	if e.p.History == nil || sessionID == "" {
		return ""
	}
	turns, err := e.p.History.LastTurns(ctx, sessionID, 2*e.p.MaxTurns)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Could not read history")
		return ""
	}
	if len(turns) == 0 {
		return ""
	}

	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = fmt.Sprintf("%s: %s", strings.ToUpper(string(t.Role)), answer.Truncate(t.Content, historyLineBudget))
	}
	return answer.Truncate(strings.Join(lines, "\n"), historyTotalBudget)
}

// Ingest embeds records and writes them into the vector index.
func (e *Engine) Ingest(ctx context.Context, records []ingest.Record, progress ingest.ProgressFunc) (*ingest.Result, error) {
	if e.p.Pipeline == nil {
		return nil, fmt.Errorf("engine: ingestion pipeline not configured")
	}
	return e.p.Pipeline.Run(ctx, records, progress)
}

// ClearSession deletes one session's history.
func (e *Engine) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	if e.p.History == nil {
		return 0, nil
	}
	return e.p.History.Clear(ctx, sessionID)
}
