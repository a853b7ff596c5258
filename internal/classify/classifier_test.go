package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diyoloji/support-engine/internal/llm"
	"github.com/diyoloji/support-engine/internal/observability"
)

func TestNormalizeSentiment(t *testing.T) {
	tests := []struct {
		raw  string
		def  Sentiment
		want Sentiment
	}{
		{"negative", SentimentNeutral, SentimentNegative},
		{"Negatif", SentimentNeutral, SentimentNegative},
		{"olumsuz", SentimentNeutral, SentimentNegative},
		{"olumlu", SentimentNeutral, SentimentPositive},
		{"pozitif", SentimentNeutral, SentimentPositive},
		{"nötr", SentimentNegative, SentimentNeutral},
		{"notr", SentimentNegative, SentimentNeutral},
		{"bilgilendirici", SentimentNegative, SentimentNeutral},
		{"info", SentimentNegative, SentimentNeutral},
		{"", SentimentNegative, SentimentNegative},
		{"garbage", SentimentPositive, SentimentPositive},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSentiment(tt.raw, tt.def), tt.raw)
	}
}

func TestClassify_NegativeKeywordPreemptsModel(t *testing.T) {
	mock := &llm.MockClient{}
	c := NewClassifier(mock, observability.Nop())

	intent, sentiment := c.Classify(context.Background(), "faturam yüksek geldi, şikayet etmek istiyorum")
	assert.Equal(t, "billing", intent)
	assert.Equal(t, SentimentNegative, sentiment)
	assert.Zero(t, mock.JSONCalls)
}

func TestClassify_NegativeWithoutRouteIsOther(t *testing.T) {
	c := NewClassifier(nil, observability.Nop())

	intent, sentiment := c.Classify(context.Background(), "bu hizmetten memnun değilim")
	assert.Equal(t, "other", intent)
	assert.Equal(t, SentimentNegative, sentiment)
}

func TestClassify_PositiveKeyword(t *testing.T) {
	c := NewClassifier(nil, observability.Nop())

	intent, sentiment := c.Classify(context.Background(), "teşekkür ederim, roaming paketi aktif oldu")
	assert.Equal(t, "roaming", intent)
	assert.Equal(t, SentimentPositive, sentiment)
}

func TestClassify_RouteWithoutSentimentIsNeutral(t *testing.T) {
	mock := &llm.MockClient{}
	c := NewClassifier(mock, observability.Nop())

	intent, sentiment := c.Classify(context.Background(), "fatura kesim tarihim ne zaman")
	assert.Equal(t, "billing", intent)
	assert.Equal(t, SentimentNeutral, sentiment)
	assert.Zero(t, mock.JSONCalls)
}

func TestClassify_ModelFallbackParsesAndNormalizes(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Content: `{"intent":"coverage","sentiment":"negatif"}`},
	}}
	c := NewClassifier(mock, observability.Nop())

	intent, sentiment := c.Classify(context.Background(), "evde hiç sinyal yok gibi")
	assert.Equal(t, "coverage", intent)
	assert.Equal(t, SentimentNegative, sentiment)
	assert.Equal(t, 1, mock.JSONCalls)
}

func TestClassify_ModelErrorFallsBackNeutralOther(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Err: errors.New("upstream down")},
	}}
	c := NewClassifier(mock, observability.Nop())

	intent, sentiment := c.Classify(context.Background(), "merhaba nasılsınız")
	assert.Equal(t, "other", intent)
	assert.Equal(t, SentimentNeutral, sentiment)
}

func TestClassify_ModelInvalidIntentRejected(t *testing.T) {
	mock := &llm.MockClient{Script: []llm.MockResponse{
		{Content: `{"intent":"sales","sentiment":"neutral"}`},
	}}
	c := NewClassifier(mock, observability.Nop())

	intent, sentiment := c.Classify(context.Background(), "merhaba nasılsınız")
	assert.Equal(t, "other", intent)
	assert.Equal(t, SentimentNeutral, sentiment)
}

func TestClassify_NilClientSkipsModel(t *testing.T) {
	c := NewClassifier(nil, observability.Nop())

	intent, sentiment := c.Classify(context.Background(), "merhaba nasılsınız")
	assert.Equal(t, "other", intent)
	assert.Equal(t, SentimentNeutral, sentiment)
}
