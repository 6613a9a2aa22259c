package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// suffixWords are corporate legal forms that end a company name
var suffixWords = map[string]bool{
	"Inc": true, "Corp": true, "Corporation": true, "LLC": true, "L.L.C": true,
	"Ltd": true, "Limited": true, "plc": true, "PLC": true, "Plc": true,
	"Holdings": true, "Group": true, "Co": true, "LP": true, "L.P": true,
	"AG": true, "SE": true, "SA": true, "S.A": true, "NV": true, "N.V": true, "GmbH": true,
}

// periodSuffixes keep their abbreviation period as part of the name
var periodSuffixes = map[string]bool{
	"Inc": true, "Corp": true, "Co": true, "Ltd": true, "L.L.C": true, "L.P": true, "S.A": true, "N.V": true,
}

// breakWords split a capitalized run, mostly so Title Case headlines do not
// fuse two names and a verb into one
var breakWords = wordSet(
	"to", "and", "or", "with", "for", "by", "of", "in", "on", "at", "from", "over", "into", "as",
	"after", "amid", "than", "via", "vs",
	"acquire", "acquires", "acquired", "acquiring", "acquisition", "buy", "buys", "bought", "buying",
	"purchase", "purchases", "purchased", "merge", "merges", "merged", "merger", "merging",
	"combine", "combines", "sell", "sells", "sold", "selling", "divest", "divests", "divested",
	"spin", "spins", "spun", "off", "agree", "agrees", "agreed", "announce", "announces", "announced",
	"complete", "completes", "completed", "close", "closes", "closed", "takeover", "deal", "deals",
	"bid", "ipo", "files", "plans", "says", "said", "will", "unit", "stake", "nears", "weighs",
	"billion", "million", "talks", "sale",
)

// leadingStopwords are trimmed from the front of a run
var leadingStopwords = wordSet(
	"the", "a", "an", "today", "yesterday", "tomorrow", "meanwhile", "earlier", "later", "also",
	"but", "both", "rival", "separately", "however", "additionally", "still", "shares", "analysts", "sources", "it", "its", "they", "we", "he", "she",
	"this", "that", "these", "those", "u.s.", "u.k.", "new:", "breaking", "exclusive", "update",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "may", "june", "july", "august", "september",
	"october", "november", "december", "jan.", "feb.", "aug.", "sept.", "sep.", "oct.", "nov.", "dec.",
)

var (
	tokenRe  = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}&'’.\-]*|&`)
	tickerRe = regexp.MustCompile(`\((?:(?:NYSE American|NYSE|NASDAQ|Nasdaq|LSE|TSX|AMEX|OTC|ASX|HKEX|TSE|SIX|Euronext)\s*:\s*)?([A-Z]{1,5}(?:\.[A-Z]{1,2})?)\)`)
	initials = regexp.MustCompile(`^(?:[A-Z]\.)+$`)
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// name is a candidate company mention within one window
type name struct {
	text     string
	start    int
	end      int
	suffixed bool
	ticker   string
}

type token struct {
	text       string
	start, end int
	possessive bool
}

// findNames returns company-name candidates in order of appearance. Names
// ending in a corporate suffix are marked; other capitalized runs are kept
// as fallbacks for role assignment next to a deal verb.
func findNames(s string) []name {
	masked, tickers := maskTickers(s)
	toks := tokenize(masked)

	var out []name
	for i := 0; i < len(toks); {
		if !startsName(toks[i]) {
			i++
			continue
		}
		j := i
		for j+1 < len(toks) && !endsRun(toks[j]) && joins(masked, toks[j], toks[j+1]) {
			j++
		}
		out = append(out, splitRun(s, toks[i:j+1])...)
		i = j + 1
	}

	for _, t := range tickers {
		idx := -1
		for k := range out {
			if out[k].end <= t.start && (idx < 0 || out[k].end > out[idx].end) {
				idx = k
			}
		}
		if idx >= 0 && out[idx].ticker == "" {
			out[idx].ticker = t.symbol
		}
	}
	return out
}

type ticker struct {
	symbol string
	start  int
}

// maskTickers blanks "(NASDAQ: TCRP)" style spans so they do not read as
// names, keeping byte offsets intact
func maskTickers(s string) (string, []ticker) {
	locs := tickerRe.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s, nil
	}
	b := []byte(s)
	tickers := make([]ticker, 0, len(locs))
	for _, loc := range locs {
		tickers = append(tickers, ticker{symbol: s[loc[2]:loc[3]], start: loc[0]})
		for k := loc[0]; k < loc[1]; k++ {
			b[k] = ' '
		}
	}
	return string(b), tickers
}

func tokenize(s string) []token {
	locs := tokenRe.FindAllStringIndex(s, -1)
	toks := make([]token, 0, len(locs))
	for _, loc := range locs {
		t := token{text: s[loc[0]:loc[1]], start: loc[0], end: loc[1]}
		for _, p := range []string{"'s", "’s"} {
			if strings.HasSuffix(t.text, p) {
				t.text = strings.TrimSuffix(t.text, p)
				t.end -= len(p)
				t.possessive = true
			}
		}
		t.text = strings.TrimRight(t.text, "-'’")
		t.end = t.start + len(t.text)
		if t.text != "" {
			toks = append(toks, t)
		}
	}
	return toks
}

func core(t token) string {
	return strings.TrimRight(t.text, ".")
}

func isSuffix(t token) bool {
	return suffixWords[core(t)]
}

func capitalized(word string) bool {
	r, size := utf8.DecodeRuneInString(word)
	if unicode.IsUpper(r) || unicode.IsDigit(r) {
		return true
	}
	// eBay, iRobot
	r2, _ := utf8.DecodeRuneInString(word[size:])
	return unicode.IsLower(r) && unicode.IsUpper(r2)
}

func isBreak(t token) bool {
	return breakWords[strings.ToLower(core(t))]
}

func startsName(t token) bool {
	return t.text != "&" && capitalized(t.text) && !isBreak(t)
}

// endsRun reports tokens that close a run: possessives and words carrying a
// sentence-like period that is not an initial or a suffix
func endsRun(t token) bool {
	if t.possessive {
		return true
	}
	if strings.HasSuffix(t.text, ".") && !initials.MatchString(t.text) && !isSuffix(t) {
		return true
	}
	return false
}

func joins(s string, cur, next token) bool {
	gap := s[cur.end:next.start]
	switch {
	case strings.TrimSpace(gap) == "" && gap != "":
	case strings.TrimSpace(gap) == "," && isSuffix(next):
	default:
		return false
	}
	if next.text == "&" {
		return true
	}
	return capitalized(next.text) && (!isBreak(next) || isSuffix(next))
}

// splitRun cuts a capitalized run after each suffix, so "A Inc B Corp"
// yields two names. Chained suffixes such as "Group Holding Ltd" stay whole.
func splitRun(s string, run []token) []name {
	var out []name
	begin := 0
	for k := 0; k < len(run); k++ {
		if !isSuffix(run[k]) || k == begin {
			continue
		}
		end := k
		for look := k + 1; look < len(run) && look <= end+2; look++ {
			if isSuffix(run[look]) {
				end = look
			}
		}
		if n, ok := makeName(s, run[begin:end+1], true); ok {
			out = append(out, n)
		}
		begin = end + 1
		k = end
	}
	if begin < len(run) {
		if n, ok := makeName(s, run[begin:], false); ok {
			out = append(out, n)
		}
	}
	return out
}

func makeName(s string, toks []token, suffixed bool) (name, bool) {
	for len(toks) > 0 && (leadingStopwords[strings.ToLower(toks[0].text)] || toks[0].text == "&") {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].text == "&" {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 || (suffixed && allSuffixes(toks)) {
		return name{}, false
	}

	first, last := toks[0], toks[len(toks)-1]
	end := last.end
	if strings.HasSuffix(last.text, ".") && !(suffixed && periodSuffixes[core(last)]) && !initials.MatchString(last.text) {
		end = last.start + len(strings.TrimRight(last.text, "."))
	}
	text := s[first.start:end]
	if !strings.ContainsFunc(text, unicode.IsLetter) {
		return name{}, false
	}
	return name{text: text, start: first.start, end: end, suffixed: suffixed}, true
}

func allSuffixes(toks []token) bool {
	for _, t := range toks {
		if !isSuffix(t) {
			return false
		}
	}
	return true
}
