// Package score turns the set of matched extraction signals into a
// confidence score and routing band.
package score

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/mergertracker/internal/model"
)

// Weights are kept in hundredths so sums are exact and order-independent
var weights = map[model.SignalCategory]int{
	model.SignalDealType:  20,
	model.SignalCompany:   25,
	model.SignalValue:     20,
	model.SignalIndustry:  10,
	model.SignalGeography: 5,
	model.SignalAdvisor:   5,
	model.SignalDate:      10,
	model.SignalStatus:    10,
}

// Band thresholds in hundredths
const (
	maxPoints  = 100
	highAbove  = 70
	mediumFrom = 30
)

// Contribution is one row of the score breakdown
type Contribution struct {
	Category model.SignalCategory `json:"category"`
	Weight   int                  `json:"weight"`
	Matched  bool                 `json:"matched"`
}

// Result is a confidence score with its transparent breakdown
type Result struct {
	Points     int                    `json:"points"` // 0-100
	Confidence float64                `json:"confidence"`
	Band       model.Band             `json:"band"`
	Signals    []model.SignalCategory `json:"signals"`
	Breakdown  []Contribution         `json:"breakdown"`
	Formula    string                 `json:"formula"`
}

// Scorer calculates deal confidence
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Weight returns the weight of a category in hundredths
func Weight(c model.SignalCategory) int {
	return weights[c]
}

// Calculate sums the weights of the matched categories. Each category
// counts once however often it matched; unknown categories count zero.
func (s *Scorer) Calculate(matched []model.SignalCategory) Result {
	set := make(map[model.SignalCategory]bool, len(matched))
	for _, c := range matched {
		if _, ok := weights[c]; ok {
			set[c] = true
		}
	}

	categories := make([]model.SignalCategory, 0, len(weights))
	for c := range weights {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if weights[categories[i]] != weights[categories[j]] {
			return weights[categories[i]] > weights[categories[j]]
		}
		return categories[i] < categories[j]
	})

	points := 0
	signals := make([]model.SignalCategory, 0, len(set))
	breakdown := make([]Contribution, 0, len(categories))
	terms := make([]string, 0, len(set))
	for _, c := range categories {
		hit := set[c]
		breakdown = append(breakdown, Contribution{Category: c, Weight: weights[c], Matched: hit})
		if hit {
			points += weights[c]
			signals = append(signals, c)
			terms = append(terms, fmt.Sprintf("%s(%.2f)", c, float64(weights[c])/100))
		}
	}
	if points > maxPoints {
		points = maxPoints
	}

	formula := "0"
	if len(terms) > 0 {
		formula = fmt.Sprintf("min(%s, 1.00)", strings.Join(terms, " + "))
	}

	return Result{
		Points:     points,
		Confidence: float64(points) / 100,
		Band:       BandFor(points),
		Signals:    signals,
		Breakdown:  breakdown,
		Formula:    formula,
	}
}

// BandFor routes a score: above 0.70 auto-accept, 0.30 to 0.70 review,
// below 0.30 discard
func BandFor(points int) model.Band {
	switch {
	case points > highAbove:
		return model.BandHigh
	case points >= mediumFrom:
		return model.BandMedium
	default:
		return model.BandLow
	}
}
