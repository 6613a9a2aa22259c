package extract

import (
	"regexp"

	"github.com/ppiankov/mergertracker/internal/model"
)

// family is one deal-type keyword family. Patterns run on lowercased text.
type family struct {
	dealType model.DealType
	pattern  *regexp.Regexp
}

// families are listed in tie-break order
var families = []family{
	{
		dealType: model.DealAcquisition,
		pattern:  regexp.MustCompile(`\b(?:acquir(?:e|es|ed|ing)|acquisition|buy(?:s|ing)?|bought|purchas(?:e|es|ed|ing)|takeover|takes? over|took over|buyout)\b`),
	},
	{
		dealType: model.DealMerger,
		pattern:  regexp.MustCompile(`\b(?:merger|merg(?:e|es|ed|ing)|combin(?:e|es|ed|ing)|combination|tie-up)\b`),
	},
	{
		dealType: model.DealIPO,
		pattern:  regexp.MustCompile(`\b(?:initial public offering|ipo|go(?:es|ing)? public|went public|stock market debut|public listing)\b`),
	},
	{
		dealType: model.DealDivestiture,
		pattern:  regexp.MustCompile(`\b(?:divest(?:s|ed|ing|iture|ment)?|spin-?offs?|spins? off|spun off|carve-?outs?|carv(?:es|ed|ing) out|disposal|sells? (?:its|a|the)|sold (?:its|a|the))\b`),
	},
}

// keywordMatch is the deal-type keyword that classified a window
type keywordMatch struct {
	dealType model.DealType
	start    int
	end      int
	text     string
}

// detectType returns the family whose earliest match comes first. Families
// matching at the same position resolve in family order.
func detectType(lower string) (keywordMatch, bool) {
	best := keywordMatch{start: -1}
	for _, f := range families {
		loc := f.pattern.FindStringIndex(lower)
		if loc == nil {
			continue
		}
		if best.start < 0 || loc[0] < best.start {
			best = keywordMatch{dealType: f.dealType, start: loc[0], end: loc[1], text: lower[loc[0]:loc[1]]}
		}
	}
	return best, best.start >= 0
}

// lowerASCII lowercases ASCII letters only, so byte offsets found in the
// result are valid in the original string
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
