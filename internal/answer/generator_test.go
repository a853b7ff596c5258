package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diyoloji/support-engine/internal/classify"
	"github.com/diyoloji/support-engine/internal/llm"
	"github.com/diyoloji/support-engine/internal/observability"
	"github.com/diyoloji/support-engine/internal/retrieval"
)

func billingRequest() Request {
	ctx := Assemble([]retrieval.RankedHit{
		rankedHit("https://example.com/fatura", "billing", "fatura detay", 0.9),
	})
	return Request{
		Query:      "faturam neden yüksek",
		Context:    ctx,
		ChosenTool: "billing",
		Intent:     "billing",
		Sentiment:  classify.SentimentNegative,
	}
}

func TestGenerate_StructuredSuccessStopsThere(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Content: `{"answer":"Fatura dökümünü kontrol et.","citations":["https://example.com/fatura"],"tool":"billing","intent":"billing","sentiment":"negative"}`},
	}}
	g := NewGenerator(mock, observability.Nop())

	out := g.Generate(context.Background(), billingRequest())
	assert.Equal(t, "Fatura dökümünü kontrol et.", out.Answer)
	assert.Equal(t, "billing", out.Tool)
	assert.Equal(t, 1, mock.StructuredCalls)
	assert.Zero(t, mock.JSONCalls)
}

func TestGenerate_FallsThroughToJSONAttempt(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Err: errors.New("schema rejected")},
		{Content: `{"answer":"JSON yanıtı","tool":"billing","intent":"billing","sentiment":"neutral"}`},
	}}
	g := NewGenerator(mock, observability.Nop())

	out := g.Generate(context.Background(), billingRequest())
	assert.Equal(t, "JSON yanıtı", out.Answer)
	// Citations were absent, so the small-context citations fill in.
	assert.Equal(t, []string{"https://example.com/fatura"}, out.Citations)
	assert.Equal(t, 1, mock.StructuredCalls)
	assert.Equal(t, 1, mock.JSONCalls)
}

func TestGenerate_TinyRetryAfterJSONFailure(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Err: errors.New("down")},
		{Err: errors.New("down")},
		{Content: `{"answer":"Küçük bağlamla yanıt","tool":"billing","intent":"billing","sentiment":"neutral"}`},
	}}
	g := NewGenerator(mock, observability.Nop())

	out := g.Generate(context.Background(), billingRequest())
	assert.Equal(t, "Küçük bağlamla yanıt", out.Answer)
	assert.Equal(t, 2, mock.JSONCalls)
}

func TestGenerate_AllFailuresReachRulesFallback(t *testing.T) {
	mock := &llm.MockClient{}
	g := NewGenerator(mock, observability.Nop())

	out := g.Generate(context.Background(), billingRequest())
	assert.True(t, strings.HasPrefix(out.Answer, "Faturan yüksek görünmüş olabilir."))
	assert.Equal(t, "billing", out.Tool)
	assert.Equal(t, "billing", out.Intent)
	assert.Equal(t, "negative", out.Sentiment)
	assert.Equal(t, []string{"https://example.com/fatura"}, out.Citations)
}

func TestGenerate_NilClientGoesStraightToRules(t *testing.T) {
	g := NewGenerator(nil, observability.Nop())

	req := billingRequest()
	req.ChosenTool = "roaming"
	out := g.Generate(context.Background(), req)
	assert.True(t, strings.HasPrefix(out.Answer, "Yurt dışı kullanımıyla ilgili kontrol listesi:"))
	assert.Equal(t, "roaming", out.Tool)
}

func TestGenerate_RulesFallbackUnknownToolUsesGenericTemplate(t *testing.T) {
	g := NewGenerator(nil, observability.Nop())

	req := billingRequest()
	req.ChosenTool = ""
	out := g.Generate(context.Background(), req)
	assert.True(t, strings.HasPrefix(out.Answer, "Netleştirmek için:"))
	assert.Equal(t, "other", out.Tool)
	assert.Equal(t, "other", out.Intent)
}

func TestGenerate_CoerceInvalidToolAndIntent(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Content: `{"answer":"yanıt","tool":"sales","intent":"sales","sentiment":"negatif"}`},
	}}
	g := NewGenerator(mock, observability.Nop())

	req := billingRequest()
	req.Intent = "sales"
	out := g.Generate(context.Background(), req)
	// Invalid model tool falls back to the chosen tool; invalid intent to other.
	assert.Equal(t, "billing", out.Tool)
	assert.Equal(t, "other", out.Intent)
	assert.Equal(t, "negative", out.Sentiment)
}

func TestGenerate_CoerceBlankAnswer(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Content: `{"answer":"   ","tool":"billing","intent":"billing","sentiment":"neutral"}`},
	}}
	g := NewGenerator(mock, observability.Nop())

	out := g.Generate(context.Background(), billingRequest())
	assert.Equal(t, "Bağlam sınırlı; aşağıdaki adımları deneyebilirsin.", out.Answer)
}

func TestGenerate_MalformedStructuredOutputFallsThrough(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Content: `not json`},
		{Content: `{"answer":"düzgün yanıt","tool":"billing","intent":"billing","sentiment":"neutral"}`},
	}}
	g := NewGenerator(mock, observability.Nop())

	out := g.Generate(context.Background(), billingRequest())
	assert.Equal(t, "düzgün yanıt", out.Answer)
}

func TestGenerate_AlwaysStructurallyValid(t *testing.T) {
	// Every external call fails and no tool was chosen; the result must
	// still satisfy the closed-set invariants.
	g := NewGenerator(&llm.MockClient{}, observability.Nop())

	out := g.Generate(context.Background(), Request{Query: "merhaba", Sentiment: classify.SentimentNeutral})
	require.NotEmpty(t, out.Answer)
	assert.Equal(t, "other", out.Tool)
	assert.Equal(t, "other", out.Intent)
	assert.Equal(t, "negative", out.Sentiment)
	assert.NotNil(t, out.Citations)
}
