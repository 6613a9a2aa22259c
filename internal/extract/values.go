package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/mergertracker/internal/model"
)

var (
	valueRe = regexp.MustCompile(`(?i)(US\$|C\$|A\$|\$|€|£|¥|\bUSD|\bEUR|\bGBP|\bCAD|\bAUD|\bJPY)\s?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(billion|bn|b|million|mln|mn|m|thousand|k)?\b`)

	perShareRe = regexp.MustCompile(`(?i)^\s*(?:a share|per share|/share|a unit|per unit|each)`)

	valueContextRe = regexp.MustCompile(`(?i)\b(?:valued at|worth|for|deal value of|price of|in a deal|totaling|totalling|valuing .{0,30} at|enterprise value of|consideration of)\s*(?:about|around|roughly|approximately|nearly|some|up to|an estimated)?\s*$`)
)

var currencies = map[string]string{
	"$": "USD", "us$": "USD", "usd": "USD",
	"€": "EUR", "eur": "EUR",
	"£": "GBP", "gbp": "GBP",
	"c$": "CAD", "cad": "CAD",
	"a$": "AUD", "aud": "AUD",
	"¥": "JPY", "jpy": "JPY",
}

var multipliers = map[string]decimal.Decimal{
	"billion": decimal.New(1, 9), "bn": decimal.New(1, 9), "b": decimal.New(1, 9),
	"million": decimal.New(1, 6), "mln": decimal.New(1, 6), "mn": decimal.New(1, 6), "m": decimal.New(1, 6),
	"thousand": decimal.New(1, 3), "k": decimal.New(1, 3),
}

// contextWindow is how far before an amount a phrase like "valued at" may start
const contextWindow = 30

// findValue returns the deal value in text. Amounts introduced by a value
// phrase win over bare amounts; per-share prices never count.
func findValue(text string) *model.DealValue {
	var fallback *model.DealValue
	for _, m := range valueRe.FindAllStringSubmatchIndex(text, -1) {
		if perShareRe.MatchString(text[m[1]:]) {
			continue
		}
		v, ok := parseValue(text[m[2]:m[3]], text[m[4]:m[5]], group(text, m, 6))
		if !ok {
			continue
		}
		from := max(0, m[0]-contextWindow)
		if valueContextRe.MatchString(text[from:m[0]]) {
			return v
		}
		if fallback == nil {
			fallback = v
		}
	}
	return fallback
}

func group(text string, m []int, i int) string {
	if m[i] < 0 {
		return ""
	}
	return text[m[i]:m[i+1]]
}

// parseValue normalizes "2.5" "billion" to 2500000000. Bare amounts under a
// thousand with no multiplier are prices, not deal values.
func parseValue(symbol, amount, unit string) (*model.DealValue, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(amount, ",", ""))
	if err != nil || !d.IsPositive() {
		return nil, false
	}
	unit = strings.ToLower(unit)
	if mult, ok := multipliers[unit]; ok {
		d = d.Mul(mult)
	} else if d.LessThan(decimal.NewFromInt(1000)) {
		return nil, false
	}

	currency, ok := currencies[strings.ToLower(symbol)]
	if !ok {
		currency = "USD"
	}
	return &model.DealValue{Amount: d, Currency: currency}, true
}
