// Package dedup merges the same deal reported by several sources.
package dedup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/util"
)

// DefaultValueDigits is how many significant digits of a deal value take
// part in the key, so $2.5bn and $2,480m collide
const DefaultValueDigits = 2

// Key derives the dedup key: the sorted normalized company pair, the value
// rounded to digits significant figures and the ISO week of the
// announcement. The week falls back to the article date, then "nodate".
func Key(d model.ExtractedDeal, digits int) string {
	if digits <= 0 {
		digits = DefaultValueDigits
	}

	companies := []string{util.NormalizeCompany(d.TargetCompany), util.NormalizeCompany(d.Acquirer())}
	sort.Strings(companies)

	value := "novalue"
	if d.Value != nil {
		value = RoundSignificant(d.Value.Amount, digits).String() + d.Value.Currency
	}

	week := "nodate"
	switch {
	case d.AnnouncementDate != nil:
		week = isoWeek(*d.AnnouncementDate)
	case d.ArticlePublishedAt != nil:
		week = isoWeek(*d.ArticlePublishedAt)
	}

	return strings.Join([]string{companies[0], companies[1], value, week}, "|")
}

// RoundSignificant rounds v half away from zero to the given number of
// significant digits
func RoundSignificant(v decimal.Decimal, digits int) decimal.Decimal {
	if v.IsZero() {
		return v
	}
	coefficient := v.Coefficient()
	coefficient.Abs(coefficient)
	magnitude := len(coefficient.String()) + int(v.Exponent())
	return v.Round(int32(digits - magnitude))
}

func isoWeek(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
