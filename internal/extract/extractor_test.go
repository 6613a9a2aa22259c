package extract

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/mergertracker/internal/model"
)

func article(body string) *model.Article {
	return &model.Article{URL: "https://news.example.com/deals/techcorp", SourceID: "example", Body: body}
}

func TestExtract_AcquisitionScenario(t *testing.T) {
	extractor := NewExtractor(nil)

	deals, err := extractor.Extract(article("TechCorp Inc. agrees to acquire DataSoft LLC for $2.5 billion"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("Expected 1 deal, got %d: %+v", len(deals), deals)
	}

	d := deals[0]
	if d.DealType != model.DealAcquisition {
		t.Errorf("Expected acquisition, got %s", d.DealType)
	}
	if d.Acquirer() != "TechCorp Inc." {
		t.Errorf("Expected acquirer 'TechCorp Inc.', got %q", d.Acquirer())
	}
	if d.TargetCompany != "DataSoft LLC" {
		t.Errorf("Expected target 'DataSoft LLC', got %q", d.TargetCompany)
	}
	if d.Value == nil {
		t.Fatal("Expected a deal value")
	}
	if !d.Value.Amount.Equal(decimal.NewFromInt(2_500_000_000)) || d.Value.Currency != "USD" {
		t.Errorf("Expected 2500000000 USD, got %s %s", d.Value.Amount, d.Value.Currency)
	}
	if d.Confidence < 0.7 {
		t.Errorf("Expected confidence >= 0.7, got %.2f", d.Confidence)
	}
	if d.Band != model.BandHigh {
		t.Errorf("Expected high band, got %s", d.Band)
	}
	if d.DealStatus != model.StatusAnnounced {
		t.Errorf("Expected announced, got %s", d.DealStatus)
	}
	if d.ID == "" || d.ID != DealID(d.SourceURL, d.DealType, d.Acquirer(), d.TargetCompany) {
		t.Errorf("Expected a stable id, got %q", d.ID)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	extractor := NewExtractor(nil)
	a := article("Goldman Sachs served as financial advisor. On March 3, 2025, Foo Inc. agreed to acquire Bar LLC (NASDAQ: BAR) for $1.2 billion in cash. The deal is expected to close in Q3 2025.\n\nAlpha Holdings and Beta Group agreed to merge in an all-stock deal.")

	first, err := extractor.Extract(a)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := extractor.Extract(a)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
}

func TestExtract_Fields(t *testing.T) {
	extractor := NewExtractor(nil)
	body := "On March 3, 2025, Foo Inc. agreed to acquire Bar LLC (NASDAQ: BAR) for $1.2 billion in cash; the deal is expected to close in Q3 2025. Goldman Sachs is serving as financial advisor to Foo and Skadden is legal counsel."

	deals, err := extractor.Extract(article(body))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("Expected 1 deal, got %d: %+v", len(deals), deals)
	}
	d := deals[0]

	if d.Acquirer() != "Foo Inc." || d.TargetCompany != "Bar LLC" {
		t.Errorf("Expected Foo Inc. -> Bar LLC, got %q -> %q", d.Acquirer(), d.TargetCompany)
	}
	if d.TargetTicker != "BAR" {
		t.Errorf("Expected target ticker BAR, got %q", d.TargetTicker)
	}
	if d.Structure != model.StructureCash {
		t.Errorf("Expected cash structure, got %q", d.Structure)
	}
	if d.AnnouncementDate == nil || !d.AnnouncementDate.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected announcement 2025-03-03, got %v", d.AnnouncementDate)
	}
	if d.ExpectedCompletion == nil || !d.ExpectedCompletion.Equal(time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected completion 2025-09-30, got %v", d.ExpectedCompletion)
	}
	if d.DealStatus != model.StatusAnnounced {
		t.Errorf("Expected announced (earliest keyword), got %s", d.DealStatus)
	}

	roles := map[string]model.AdvisorRole{}
	for _, a := range d.Advisors {
		roles[a.Name] = a.Role
	}
	if roles["Goldman Sachs"] != model.AdvisorFinancial {
		t.Errorf("Expected Goldman Sachs as financial advisor, got %+v", d.Advisors)
	}
	if roles["Skadden"] != model.AdvisorLegal {
		t.Errorf("Expected Skadden as legal advisor, got %+v", d.Advisors)
	}
}

func TestExtract_Roles(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		dealType model.DealType
		acquirer string
		target   string
	}{
		{
			name:     "passive voice",
			text:     "DataSoft LLC was acquired by TechCorp Inc. in a $300 million deal.",
			dealType: model.DealAcquisition,
			acquirer: "TechCorp Inc.",
			target:   "DataSoft LLC",
		},
		{
			name:     "acquisition of by",
			text:     "The acquisition of Widget Corp by Gadget Holdings was completed on Friday.",
			dealType: model.DealAcquisition,
			acquirer: "Gadget Holdings",
			target:   "Widget Corp",
		},
		{
			name:     "unsuffixed names next to verb",
			text:     "Microsoft agreed to buy Activision for $69 billion.",
			dealType: model.DealAcquisition,
			acquirer: "Microsoft",
			target:   "Activision",
		},
		{
			name:     "merger takes first two names",
			text:     "Alpha Holdings and Beta Group agreed to merge in an all-stock deal.",
			dealType: model.DealMerger,
			acquirer: "Beta Group",
			target:   "Alpha Holdings",
		},
		{
			name:     "ipo has target only",
			text:     "Rivian Automotive plans an initial public offering on the Nasdaq.",
			dealType: model.DealIPO,
			target:   "Rivian Automotive",
		},
		{
			name:     "divestiture buyer after to",
			text:     "Acme Corp sells its Widget Division to Foo Holdings for $400 million.",
			dealType: model.DealDivestiture,
			acquirer: "Foo Holdings",
			target:   "Widget Division",
		},
	}

	extractor := NewExtractor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deals, err := extractor.Extract(article(tt.text))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(deals) != 1 {
				t.Fatalf("Expected 1 deal, got %d: %+v", len(deals), deals)
			}
			d := deals[0]
			if d.DealType != tt.dealType {
				t.Errorf("Expected %s, got %s", tt.dealType, d.DealType)
			}
			if d.Acquirer() != tt.acquirer {
				t.Errorf("Expected acquirer %q, got %q", tt.acquirer, d.Acquirer())
			}
			if d.TargetCompany != tt.target {
				t.Errorf("Expected target %q, got %q", tt.target, d.TargetCompany)
			}
		})
	}
}

func TestExtract_TitleAndBodyCollapse(t *testing.T) {
	a := article("TechCorp Inc. agrees to acquire DataSoft LLC for $2.5 billion.")
	a.Title = "TechCorp to acquire DataSoft"

	deals, err := NewExtractor(nil).Extract(a)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("Expected title and body to collapse into 1 deal, got %d: %+v", len(deals), deals)
	}
	if deals[0].Value == nil || deals[0].Acquirer() != "TechCorp Inc." {
		t.Errorf("Expected the higher-scoring body deal to survive, got %+v", deals[0])
	}
}

func TestExtract_MultipleDeals(t *testing.T) {
	body := "TechCorp Inc. agrees to acquire DataSoft LLC for $2.5 billion.\n\nSeparately, Acme Corp completed its acquisition of Roadrunner Ltd for $80 million in cash."

	deals, err := NewExtractor(nil).Extract(article(body))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("Expected 2 deals, got %d: %+v", len(deals), deals)
	}
	if deals[1].TargetCompany != "Roadrunner Ltd" || deals[1].DealStatus != model.StatusCompleted {
		t.Errorf("Expected completed Roadrunner Ltd deal, got %+v", deals[1])
	}
}

func TestExtract_SemicolonJoinedDeals(t *testing.T) {
	body := "TechCorp Inc. acquired DataSoft LLC for $2.5 billion; TechCorp Inc. also acquired Foo Corp for $1 billion."

	deals, err := NewExtractor(nil).Extract(article(body))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("Expected 2 deals, got %d: %+v", len(deals), deals)
	}
	if deals[0].TargetCompany != "DataSoft LLC" || deals[1].TargetCompany != "Foo Corp" {
		t.Errorf("Expected DataSoft LLC then Foo Corp, got %q and %q", deals[0].TargetCompany, deals[1].TargetCompany)
	}
	if deals[1].Acquirer() != "TechCorp Inc." {
		t.Errorf("Expected acquirer 'TechCorp Inc.', got %q", deals[1].Acquirer())
	}
	if deals[1].Value == nil || !deals[1].Value.Amount.Equal(decimal.NewFromInt(1_000_000_000)) {
		t.Errorf("Expected the second clause's own value, got %+v", deals[1].Value)
	}
}

func TestExtract_NoCompanyDiscarded(t *testing.T) {
	deals, err := NewExtractor(nil).Extract(article("The company agreed to acquire a rival for $5 billion."))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(deals) != 0 {
		t.Errorf("Expected no deals without company names, got %+v", deals)
	}
}

func TestExtract_ConfidentDealsAlwaysNameACompany(t *testing.T) {
	corpus := []string{
		"TechCorp Inc. agrees to acquire DataSoft LLC for $2.5 billion",
		"The firm said it would acquire a stake worth $2 billion in a definitive agreement announced January 5, 2025.",
		"Shares jumped after the merger was announced, valued at €1.2bn, with Goldman Sachs advising.",
		"Reportedly, a buyer is in talks to purchase the unit for £400 million in the U.K.",
		"Foo Inc. agreed to acquire Bar LLC for $1.2 billion in cash on March 3, 2025.",
		"A software company plans an IPO in the United States, expected to close in Q3 2025.",
	}
	extractor := NewExtractor(nil)
	for _, text := range corpus {
		deals, err := extractor.Extract(article(text))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		for _, d := range deals {
			if d.Confidence >= 0.7 && d.TargetCompany == "" && d.Acquirer() == "" {
				t.Errorf("Confident deal without a company: %+v", d)
			}
			if d.TargetCompany == "" {
				t.Errorf("Deal emitted without target: %+v", d)
			}
			if d.Band == model.BandLow {
				t.Errorf("Low band deal emitted: %+v", d)
			}
		}
	}
}

func TestExtract_EmptyAndNil(t *testing.T) {
	extractor := NewExtractor(nil)

	if _, err := extractor.Extract(nil); !errors.Is(err, ErrNilArticle) {
		t.Errorf("Expected ErrNilArticle, got %v", err)
	}

	deals, err := extractor.Extract(&model.Article{URL: "https://x.example.com", Title: "TechCorp to acquire DataSoft"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if deals == nil || len(deals) != 0 {
		t.Errorf("Expected empty non-nil list, got %#v", deals)
	}
}

func TestFindValue(t *testing.T) {
	tests := []struct {
		text     string
		amount   int64
		currency string
	}{
		{"agreed to buy it for $2.5 billion", 2_500_000_000, "USD"},
		{"a deal worth US$300m", 300_000_000, "USD"},
		{"valued at €1.2bn including debt", 1_200_000_000, "EUR"},
		{"for £400 million", 400_000_000, "GBP"},
		{"paid $2,500,000 in total", 2_500_000, "USD"},
		{"offered $45 a share, valuing the company at $3 billion", 3_000_000_000, "USD"},
		{"raised $20 million before agreeing to a sale for $700 million", 700_000_000, "USD"},
		{"a C$1.1 billion transaction", 1_100_000_000, "CAD"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v := findValue(tt.text)
			if v == nil {
				t.Fatal("Expected a value")
			}
			if !v.Amount.Equal(decimal.NewFromInt(tt.amount)) || v.Currency != tt.currency {
				t.Errorf("Expected %d %s, got %s %s", tt.amount, tt.currency, v.Amount, v.Currency)
			}
		})
	}

	if v := findValue("shares closed at $45 per share"); v != nil {
		t.Errorf("Expected per-share price to be ignored, got %+v", v)
	}
}

func TestParseDate(t *testing.T) {
	day := time.Date(2006, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"January 2, 2006", day, true},
		{"Jan. 2, 2006", day, true},
		{"2 January 2006", day, true},
		{"2006-01-02", day, true},
		{"01/02/2006", day, true},
		{"2006/01/02", day, true},
		{"2nd January 2006", day, true},
		{"Sept. 5, 2024", time.Date(2024, 9, 5, 0, 0, 0, 0, time.UTC), true},
		{"2006-01-02T15:04:05Z", time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC), true},
		{"2006-01-02T20:00:00-05:00", time.Date(2006, 1, 3, 1, 0, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
		{"2024-13-45", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindExpectedCompletion(t *testing.T) {
	tests := []struct {
		text string
		want time.Time
	}{
		{"The deal is expected to close in the third quarter of 2025.", time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)},
		{"It is expected to close in Q1 2026.", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)},
		{"The transaction is expected to complete by March 2026.", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)},
		{"expected to close in the first half of 2025", time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)},
		{"expected to close by June 15, 2025", time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"expected to close in 2027", time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, _ := findExpectedCompletion(tt.text)
		if got == nil || !got.Equal(tt.want) {
			t.Errorf("findExpectedCompletion(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFindNames(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"TechCorp Inc. agrees to acquire DataSoft LLC", []string{"TechCorp Inc.", "DataSoft LLC"}},
		{"Alibaba Group Holding Ltd bought a stake", []string{"Alibaba Group Holding Ltd"}},
		{"Sullivan & Cromwell advised Acme, Inc. on the deal", []string{"Sullivan & Cromwell", "Acme, Inc."}},
		{"The board of Foo Corp said Bar's offer was low", []string{"Foo Corp", "Bar"}},
		{"Shares of eBay rose", []string{"eBay"}},
	}

	for _, tt := range tests {
		var got []string
		for _, n := range findNames(tt.text) {
			got = append(got, n.text)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("findNames(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestDetectType_EarliestWins(t *testing.T) {
	kw, ok := detectType("the merger follows an earlier acquisition")
	if !ok || kw.dealType != model.DealMerger {
		t.Errorf("Expected merger (earliest keyword), got %+v", kw)
	}

	if _, ok := detectType("quarterly earnings beat estimates"); ok {
		t.Error("Expected no deal type")
	}
}
