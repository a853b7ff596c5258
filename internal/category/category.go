// Package category defines the closed set of support categories and the
// keyword-based routers that map free text onto them.
package category

import "strings"

// Tool is a support category used both to filter retrieval and to select
// fallback answer templates.
type Tool string

const (
	ToolBilling  Tool = "billing"
	ToolRoaming  Tool = "roaming"
	ToolPackage  Tool = "package"
	ToolCoverage Tool = "coverage"
	ToolApp      Tool = "app"

	// ToolOther is not a routable category; it is the safe default for the
	// answer's tool/intent fields when nothing else applies.
	ToolOther Tool = "other"
)

// All lists the routable categories in registration order. Tie-breaks in the
// keyword router resolve to the first entry in this order, so it must stay
// stable.
var All = []Tool{ToolBilling, ToolRoaming, ToolPackage, ToolCoverage, ToolApp}

// Valid reports whether t is one of the routable categories.
func Valid(t Tool) bool {
	switch t {
	case ToolBilling, ToolRoaming, ToolPackage, ToolCoverage, ToolApp:
		return true
	}
	return false
}

// ValidIntent reports whether t is a routable category or ToolOther.
func ValidIntent(t Tool) bool {
	return Valid(t) || t == ToolOther
}

// Fold lower-cases s for keyword matching with Turkish dotted/dotless I
// handling: a plain ToLower turns "İ" into "i̇" (combining dot) and "I" into
// "i", both of which break substring matches against Turkish keyword tables.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "İ", "i")
	s = strings.ReplaceAll(s, "I", "ı")
	return strings.ToLower(s)
}

// toolKeywords is the query-time keyword table. Registration order matters
// for tie-breaks (see Route).
var toolKeywords = []struct {
	tool Tool
	kws  []string
}{
	{ToolBilling, []string{
		"fatura", "ödeme", "odeme", "kesim", "borç", "borc", "tahsilat",
		"invoice", "bill", "faturam", "ekstre",
	}},
	{ToolRoaming, []string{
		"yurtdışı", "yurtdisi", "roaming", "uluslararası", "uluslararasi",
		"abroad", "international", "seyahat", "dolaşım", "dolasim",
		"almanya", "germany", "avrupa", "ab", "fransa", "italya", "ingiltere",
		"uk", "ispanya", "hollanda", "austria", "avusturya", "isviçre",
		"switzerland",
	}},
	{ToolPackage, []string{
		"paket", "tarife", "dakika", "internet", "sms", "ek paket", "ekpaket",
		"quota", "abonelik", "devir", "hat devri", "hat taşıma", "taşıma",
		"iptal", "iptali", "paket bitti", "paketim bitti", "paket satın al",
		"paket al", "paket yenile", "paket değiştir", "paket degistir",
		"paket yükselt", "paket dusur", "kampanya",
	}},
	{ToolCoverage, []string{
		"kapsama", "çekim", "cekim", "4.5g", "5g", "şebeke", "sebeke",
		"baz istasyonu", "coverage", "signal", "çekmiyor", "cek miyor",
		"çekim gücü",
	}},
	{ToolApp, []string{
		"dijital operatör", "dijital operator", "uygulama", "app", "giriş",
		"girış", "giris", "giremiyorum", "şifre", "sifre", "login", "reset",
		"başlatılamadı", "crash", "atıyor", "atiyor", "sürekli atıyor",
		"donuyor", "takılıyor", "çöküyor", "hata", "açılmıyor", "yavaş",
	}},
}

// Route maps free text onto the category whose keyword table scores the most
// substring hits. Ties at a positive count resolve to the first-registered
// category; a zero maximum means no route and ok is false.
func Route(text string) (Tool, bool) {
	folded := Fold(text)

	var best Tool
	bestScore := 0
	for _, entry := range toolKeywords {
		score := 0
		for _, kw := range entry.kws {
			if strings.Contains(folded, kw) {
				score++
			}
		}
		// Strictly greater keeps the first-registered winner on ties.
		if score > bestScore {
			best = entry.tool
			bestScore = score
		}
	}

	if bestScore == 0 {
		return "", false
	}
	return best, true
}

// quickRoutes is an independent, query-time phrase table with the same
// highest-hits-wins rule as Route but a different, overlapping phrase list.
var quickRoutes = []struct {
	tool Tool
	kws  []string
}{
	{ToolPackage, []string{
		"hat devri", "hattı devret", "hattimi devret", "üzerine devret",
		"hat sahibi değiş", "sahiplik devri", "numara devri",
		"isim değişikliği",
	}},
	{ToolBilling, []string{
		"fatura", "ödeme", "odeme", "borç", "tahsilat", "kesim",
		"yüksek geldi", "indirim", "itiraz",
	}},
	{ToolRoaming, []string{
		"roaming", "yurtdışı", "yurtdisi", "abroad", "uluslararası",
	}},
	{ToolCoverage, []string{
		"kapsama", "çekim", "cekim", "şebeke", "sebeke", "4.5g", "5g",
		"coverage", "signal",
	}},
	{ToolApp, []string{
		"dijital operatör", "dijital operator", "uygulama", "app", "giriş",
		"sifre", "şifre", "login", "reset",
	}},
}

// QuickRoute is the lighter query-time router. Callers must not assume a
// route was found.
func QuickRoute(text string) (Tool, bool) {
	folded := Fold(text)

	var best Tool
	bestScore := 0
	for _, entry := range quickRoutes {
		score := 0
		for _, kw := range entry.kws {
			if strings.Contains(folded, kw) {
				score++
			}
		}
		if score > bestScore {
			best = entry.tool
			bestScore = score
		}
	}

	if bestScore == 0 {
		return "", false
	}
	return best, true
}

// ingestRules maps scraped metadata onto a category at ingestion time.
// First matching rule wins; unlike the query-time routers this mapper always
// yields a category, defaulting to package.
var ingestRules = []struct {
	tool Tool
	kws  []string
}{
	{ToolBilling, []string{"fatura", "odeme", "ödeme", "borç", "tahsilat", "kesim"}},
	{ToolRoaming, []string{"roaming", "yurtdışı", "yurtdisi", "uluslararası", "abroad"}},
	{ToolCoverage, []string{"kapsama", "çekim", "4.5g", "5g", "şebeke", "coverage", "signal"}},
	{ToolApp, []string{"dijital operatör", "uygulama", "app", "giriş", "şifre", "login", "reset"}},
	{ToolPackage, []string{"abonelik", "hat", "tarife", "paket", "devir"}},
}

// MapScraped resolves a category from scraped document metadata. The inputs
// are concatenated and matched against the ingest rule table in order.
func MapScraped(scrapedCat, slug, title, breadcrumb string) Tool {
	blob := strings.ToLower(strings.Join([]string{scrapedCat, slug, title, breadcrumb}, " "))
	for _, rule := range ingestRules {
		for _, kw := range rule.kws {
			if strings.Contains(blob, kw) {
				return rule.tool
			}
		}
	}
	return ToolPackage
}
