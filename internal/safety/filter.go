package safety

import (
	"strings"

	"github.com/diyoloji/support-engine/internal/category"
)

// RefusalMessage is returned verbatim when a hard-fail policy blocks a query.
const RefusalMessage = "Üzgünüm, uygunsuz veya hakaret içeren taleplere yanıt veremem."

// Result of a safety check.
type Result struct {
	Passed bool
	Note   string
}

// Filter screens user input before it reaches the pipeline.
type Filter interface {
	Check(text string) Result
}

// Mode decides what a failed check does to the request.
type Mode string

const (
	// ModeSoft logs the flag and lets the request continue.
	ModeSoft Mode = "soft"
	// ModeHard short-circuits the pipeline with a fixed refusal.
	ModeHard Mode = "hard"
)

// Policy couples a filter with its failure mode. One policy value is
// selected per request and consulted everywhere, so soft and hard behavior
// cannot diverge between pipeline stages.
type Policy struct {
	Filter Filter
	Mode   Mode
}

// Evaluate runs the filter. Refuse is true only in hard mode.
func (p Policy) Evaluate(text string) (result Result, refuse bool) {
	if p.Filter == nil {
		return Result{Passed: true}, false
	}
	result = p.Filter.Check(text)
	return result, !result.Passed && p.Mode == ModeHard
}

// harassmentTerms is a coarse Turkish insult list used when no external
// guard service is configured.
var harassmentTerms = []string{
	"salak", "aptal", "gerizekalı", "gerizekali", "eşek", "mal", "sığır", "sigir", "enayi", "keriz",
	"ahmak", "dangalak", "şerefsiz", "serefsiz", "geri zekalı", "geri zekali", "rezil", "aptalsınız", "aptalsiniz",
}

// KeywordFilter flags input containing known Turkish harassment terms.
type KeywordFilter struct{}

func (KeywordFilter) Check(text string) Result {
	folded := category.Fold(text)
	for _, term := range harassmentTerms {
		if strings.Contains(folded, term) {
			return Result{Passed: false, Note: "Local harassment keyword match."}
		}
	}
	return Result{Passed: true}
}
