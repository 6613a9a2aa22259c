package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/mergertracker/internal/model"
)

type statusRule struct {
	status  model.DealStatus
	pattern *regexp.Regexp
}

// statusRules are in tie-break order. Patterns run on lowercased text.
var statusRules = []statusRule{
	{model.StatusCompleted, regexp.MustCompile(`\b(?:completed|completes|closed|closes|finalized|finalizes|finalised)\b`)},
	{model.StatusPending, regexp.MustCompile(`\b(?:pending|subject to|expected to close|expected to complete|awaiting|awaits)\b`)},
	{model.StatusRumored, regexp.MustCompile(`\b(?:reportedly|in talks|considering|exploring|people familiar|rumou?red|weighing|in advanced talks)\b`)},
	{model.StatusAnnounced, regexp.MustCompile(`\b(?:announced|announces|agreed|agrees to|agree to|definitive agreement|signed)\b`)},
}

// findStatus returns the status whose keyword appears first. ok is false
// when no status keyword is present.
func findStatus(lower string) (model.DealStatus, bool) {
	best, at := model.StatusAnnounced, -1
	for _, r := range statusRules {
		loc := r.pattern.FindStringIndex(lower)
		if loc != nil && (at < 0 || loc[0] < at) {
			best, at = r.status, loc[0]
		}
	}
	return best, at >= 0
}

var (
	cashRe  = regexp.MustCompile(`\b(?:all-cash|in cash|cash deal|cash transaction|cash offer|for cash|cash consideration)\b`)
	stockRe = regexp.MustCompile(`\b(?:all-stock|in stock|stock deal|stock transaction|stock swap|share swap|shares of|in shares|per share in stock|stock-for-stock)\b`)
	mixedRe = regexp.MustCompile(`\b(?:cash and stock|stock and cash|cash-and-stock|cash and shares|mix of cash)\b`)
)

func findStructure(lower string) model.DealStructure {
	switch {
	case mixedRe.MatchString(lower):
		return model.StructureMixed
	case cashRe.MatchString(lower) && stockRe.MatchString(lower):
		return model.StructureMixed
	case cashRe.MatchString(lower):
		return model.StructureCash
	case stockRe.MatchString(lower):
		return model.StructureStock
	}
	return ""
}

const advisorName = `([A-Z][\w&.\-]*(?:,?\s+(?:&\s+)?[A-Z][\w&.\-]*)*)`

var advisorPatterns = []struct {
	role    model.AdvisorRole
	pattern *regexp.Regexp
}{
	{model.AdvisorFinancial, regexp.MustCompile(`[Ff]inancial advis[eo]rs? (?:to [^,.;]+? )?(?:is |was |were |are )?` + advisorName)},
	{model.AdvisorLegal, regexp.MustCompile(`[Ll]egal (?:advis[eo]rs?|counsel) (?:to [^,.;]+? )?(?:is |was |were |are )?` + advisorName)},
	{model.AdvisorFinancial, regexp.MustCompile(advisorName + `,? (?:(?:served|serves|is serving|acted|acts|is acting|was|is) as|is|was|are|were) (?:the )?(?:exclusive |lead |sole )?financial advis[eo]r`)},
	{model.AdvisorLegal, regexp.MustCompile(advisorName + `,? (?:(?:served|serves|is serving|acted|acts|is acting|was|is) as|is|was|are|were) (?:the )?(?:exclusive |lead |sole )?legal (?:advis[eo]r|counsel)`)},
	{model.AdvisorFinancial, regexp.MustCompile(`(?:advised by|represented by) ` + advisorName)},
}

// knownAdvisors maps well-known firms to their usual role. A match here
// overrides the role inferred from the phrasing.
var knownAdvisors = []model.Advisor{
	{Name: "Goldman Sachs", Role: model.AdvisorFinancial},
	{Name: "Morgan Stanley", Role: model.AdvisorFinancial},
	{Name: "JPMorgan", Role: model.AdvisorFinancial},
	{Name: "J.P. Morgan", Role: model.AdvisorFinancial},
	{Name: "Bank of America", Role: model.AdvisorFinancial},
	{Name: "BofA Securities", Role: model.AdvisorFinancial},
	{Name: "Citigroup", Role: model.AdvisorFinancial},
	{Name: "Citi", Role: model.AdvisorFinancial},
	{Name: "Barclays", Role: model.AdvisorFinancial},
	{Name: "Credit Suisse", Role: model.AdvisorFinancial},
	{Name: "UBS", Role: model.AdvisorFinancial},
	{Name: "Deutsche Bank", Role: model.AdvisorFinancial},
	{Name: "Lazard", Role: model.AdvisorFinancial},
	{Name: "Evercore", Role: model.AdvisorFinancial},
	{Name: "Centerview Partners", Role: model.AdvisorFinancial},
	{Name: "Centerview", Role: model.AdvisorFinancial},
	{Name: "Moelis", Role: model.AdvisorFinancial},
	{Name: "PJT Partners", Role: model.AdvisorFinancial},
	{Name: "Rothschild", Role: model.AdvisorFinancial},
	{Name: "Jefferies", Role: model.AdvisorFinancial},
	{Name: "Qatalyst", Role: model.AdvisorFinancial},
	{Name: "Wachtell, Lipton, Rosen & Katz", Role: model.AdvisorLegal},
	{Name: "Wachtell Lipton", Role: model.AdvisorLegal},
	{Name: "Skadden", Role: model.AdvisorLegal},
	{Name: "Sullivan & Cromwell", Role: model.AdvisorLegal},
	{Name: "Kirkland & Ellis", Role: model.AdvisorLegal},
	{Name: "Latham & Watkins", Role: model.AdvisorLegal},
	{Name: "Davis Polk", Role: model.AdvisorLegal},
	{Name: "Simpson Thacher", Role: model.AdvisorLegal},
	{Name: "Cravath", Role: model.AdvisorLegal},
	{Name: "Freshfields", Role: model.AdvisorLegal},
	{Name: "Clifford Chance", Role: model.AdvisorLegal},
	{Name: "Linklaters", Role: model.AdvisorLegal},
	{Name: "Allen & Overy", Role: model.AdvisorLegal},
	{Name: "Cleary Gottlieb", Role: model.AdvisorLegal},
	{Name: "Weil, Gotshal & Manges", Role: model.AdvisorLegal},
	{Name: "Gibson Dunn", Role: model.AdvisorLegal},
	{Name: "Wilson Sonsini", Role: model.AdvisorLegal},
}

type advisorHit struct {
	adv     model.Advisor
	at, end int
}

// findAdvisors collects advisors named by phrasing or by the known-firm list,
// in order of first appearance and without repeats
func findAdvisors(text string) []model.Advisor {
	var hits []advisorHit
	seen := make(map[string]bool)
	add := func(a model.Advisor, at int) {
		key := strings.ToLower(a.Name)
		if a.Name == "" || seen[key] {
			return
		}
		seen[key] = true
		hits = append(hits, advisorHit{adv: a, at: at, end: at + len(a.Name)})
	}

	for _, k := range knownAdvisors {
		if i := indexWord(text, k.Name); i >= 0 && !coveredBy(hits, i, len(k.Name)) {
			add(k, i)
		}
	}
	for _, p := range advisorPatterns {
		for _, m := range p.pattern.FindAllStringSubmatchIndex(text, -1) {
			name := strings.TrimRight(text[m[2]:m[3]], ".,")
			if isBreak(token{text: name}) || knownRole(name) != "" {
				continue
			}
			add(model.Advisor{Name: name, Role: p.role}, m[2])
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	out := make([]model.Advisor, len(hits))
	for i, h := range hits {
		out[i] = h.adv
	}
	return out
}

func knownRole(name string) model.AdvisorRole {
	for _, k := range knownAdvisors {
		if strings.Contains(name, k.Name) {
			return k.Role
		}
	}
	return ""
}

// coveredBy reports whether a span overlaps an earlier known-firm hit, so
// "Centerview" is not reported again inside "Centerview Partners"
func coveredBy(hits []advisorHit, at, n int) bool {
	for _, h := range hits {
		if at < h.end && at+n > h.at {
			return true
		}
	}
	return false
}

func indexWord(text, word string) int {
	from := 0
	for {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(word)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return i
		}
		from = i + 1
	}
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

type tagRule struct {
	tag      string
	keywords []string
}

// industryRules are checked in order; the first with a hit wins
var industryRules = []tagRule{
	{"technology", []string{"tech", "technology", "software", "saas", "ai", "artificial intelligence", "cloud", "digital", "semiconductor", "chip", "chipmaker", "cybersecurity", "data", "internet", "platform", "app"}},
	{"healthcare", []string{"health", "healthcare", "pharma", "pharmaceutical", "biotech", "medical", "hospital", "drugmaker", "therapeutics", "diagnostics", "clinical"}},
	{"financial_services", []string{"bank", "banking", "financial", "fintech", "insurance", "insurer", "asset management", "payments", "lender", "brokerage", "capital"}},
	{"energy", []string{"energy", "oil", "gas", "renewable", "solar", "wind", "utility", "utilities", "power", "petroleum", "lng", "pipeline"}},
	{"real_estate", []string{"real estate", "property", "properties", "reit", "realty", "homebuilder", "housing"}},
	{"retail", []string{"retail", "retailer", "store", "stores", "e-commerce", "ecommerce", "consumer", "grocery", "apparel"}},
	{"telecommunications", []string{"telecom", "telecommunications", "wireless", "broadband", "5g", "carrier", "cable", "fiber"}},
	{"manufacturing", []string{"manufacturing", "manufacturer", "industrial", "industrials", "factory", "automotive", "aerospace", "machinery", "steel", "chemicals"}},
}

// geographyRules map location words to regions
var geographyRules = []tagRule{
	{"north_america", []string{"united states", "u.s.", "us-based", "america", "american", "canada", "canadian", "mexico", "new york", "california", "texas", "silicon valley", "toronto", "nyse", "nasdaq"}},
	{"europe", []string{"europe", "european", "uk", "u.k.", "britain", "british", "london", "germany", "german", "france", "french", "paris", "netherlands", "dutch", "switzerland", "swiss", "spain", "italy", "sweden", "ireland", "frankfurt", "lse"}},
	{"asia_pacific", []string{"asia", "asian", "china", "chinese", "japan", "japanese", "india", "indian", "singapore", "hong kong", "korea", "korean", "australia", "australian", "tokyo", "shanghai", "taiwan", "asx", "hkex"}},
	{"latin_america", []string{"latin america", "brazil", "brazilian", "argentina", "chile", "colombia", "peru", "sao paulo"}},
	{"middle_east_africa", []string{"middle east", "saudi", "uae", "dubai", "abu dhabi", "israel", "israeli", "qatar", "africa", "african", "nigeria", "egypt", "kenya"}},
}

var (
	industryMatchers  = compileTagRules(industryRules)
	geographyMatchers = compileTagRules(geographyRules)
)

type tagMatcher struct {
	tag      string
	text     *regexp.Regexp
	keywords []string
}

func compileTagRules(rules []tagRule) []tagMatcher {
	out := make([]tagMatcher, 0, len(rules))
	for _, r := range rules {
		quoted := make([]string, len(r.keywords))
		for i, k := range r.keywords {
			quoted[i] = regexp.QuoteMeta(k)
		}
		out = append(out, tagMatcher{
			tag:      r.tag,
			text:     regexp.MustCompile(`(?:^|[^a-z0-9])(?:` + strings.Join(quoted, "|") + `)(?:$|[^a-z0-9])`),
			keywords: r.keywords,
		})
	}
	return out
}

// findIndustry tags by company names first (substring, so "TechCorp" reads
// as technology), then by whole words in the text
func findIndustry(lower string, companies []string) (string, bool) {
	for _, m := range industryMatchers {
		for _, c := range companies {
			c = strings.ToLower(c)
			for _, k := range m.keywords {
				if len(k) >= 4 && strings.Contains(c, k) {
					return m.tag, true
				}
			}
		}
	}
	return firstTag(industryMatchers, lower)
}

func findGeography(lower string) (string, bool) {
	return firstTag(geographyMatchers, lower)
}

func firstTag(matchers []tagMatcher, lower string) (string, bool) {
	for _, m := range matchers {
		if m.text.MatchString(lower) {
			return m.tag, true
		}
	}
	return "", false
}
