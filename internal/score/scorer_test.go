package score

import (
	"testing"

	"github.com/ppiankov/mergertracker/internal/model"
)

func TestScorer_Calculate_Weights(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name    string
		signals []model.SignalCategory
		points  int
		band    model.Band
	}{
		{"none", nil, 0, model.BandLow},
		{"type only", []model.SignalCategory{model.SignalDealType}, 20, model.BandLow},
		{"type and company", []model.SignalCategory{model.SignalDealType, model.SignalCompany}, 45, model.BandMedium},
		{"exactly 0.70 is medium", []model.SignalCategory{
			model.SignalDealType, model.SignalCompany, model.SignalValue, model.SignalGeography,
		}, 70, model.BandMedium},
		{"core plus status", []model.SignalCategory{
			model.SignalDealType, model.SignalCompany, model.SignalValue, model.SignalStatus,
		}, 75, model.BandHigh},
		{"all", []model.SignalCategory{
			model.SignalDealType, model.SignalCompany, model.SignalValue, model.SignalIndustry,
			model.SignalGeography, model.SignalAdvisor, model.SignalDate, model.SignalStatus,
		}, 100, model.BandHigh},
		{"repeats count once", []model.SignalCategory{
			model.SignalCompany, model.SignalCompany, model.SignalCompany,
		}, 25, model.BandLow},
		{"unknown ignored", []model.SignalCategory{"sentiment", model.SignalValue}, 20, model.BandLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Calculate(tt.signals)
			if result.Points != tt.points {
				t.Errorf("Points = %d, want %d", result.Points, tt.points)
			}
			if result.Confidence != float64(tt.points)/100 {
				t.Errorf("Confidence = %v, want %v", result.Confidence, float64(tt.points)/100)
			}
			if result.Band != tt.band {
				t.Errorf("Band = %s, want %s", result.Band, tt.band)
			}
		})
	}
}

func TestScorer_Calculate_OrderIndependent(t *testing.T) {
	scorer := NewScorer()
	a := scorer.Calculate([]model.SignalCategory{model.SignalDate, model.SignalCompany, model.SignalDealType})
	b := scorer.Calculate([]model.SignalCategory{model.SignalDealType, model.SignalDate, model.SignalCompany})

	if a.Confidence != b.Confidence || a.Formula != b.Formula {
		t.Errorf("Order changed result: %+v vs %+v", a, b)
	}
	if len(a.Signals) != 3 || a.Signals[0] != model.SignalCompany {
		t.Errorf("Signals should be ordered by weight, got %v", a.Signals)
	}
}

func TestScorer_Calculate_Breakdown(t *testing.T) {
	result := NewScorer().Calculate([]model.SignalCategory{model.SignalValue})
	if len(result.Breakdown) != 8 {
		t.Fatalf("Expected 8 breakdown rows, got %d", len(result.Breakdown))
	}

	total := 0
	for _, c := range result.Breakdown {
		total += c.Weight
		if c.Matched != (c.Category == model.SignalValue) {
			t.Errorf("Unexpected match flag for %s", c.Category)
		}
	}
	if total != 105 {
		t.Errorf("Weights should sum to 1.05 before capping, got %d", total)
	}
	if result.Formula != "min(value(0.20), 1.00)" {
		t.Errorf("Unexpected formula: %s", result.Formula)
	}
}

func TestBandFor(t *testing.T) {
	cases := map[int]model.Band{0: model.BandLow, 29: model.BandLow, 30: model.BandMedium, 70: model.BandMedium, 71: model.BandHigh, 100: model.BandHigh}
	for points, want := range cases {
		if got := BandFor(points); got != want {
			t.Errorf("BandFor(%d) = %s, want %s", points, got, want)
		}
	}
}
