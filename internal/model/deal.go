package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DealType classifies a transaction
type DealType string

const (
	DealMerger      DealType = "merger"
	DealAcquisition DealType = "acquisition"
	DealIPO         DealType = "ipo"
	DealDivestiture DealType = "divestiture"
	DealOther       DealType = "other"
)

// DealStatus is the lifecycle stage reported by the article
type DealStatus string

const (
	StatusAnnounced DealStatus = "announced"
	StatusPending   DealStatus = "pending"
	StatusCompleted DealStatus = "completed"
	StatusRumored   DealStatus = "rumored"
)

// DealStructure describes the consideration
type DealStructure string

const (
	StructureCash  DealStructure = "cash"
	StructureStock DealStructure = "stock"
	StructureMixed DealStructure = "mixed"
)

// Band is the confidence routing bucket
type Band string

const (
	BandHigh   Band = "high"   // Auto-accept
	BandMedium Band = "medium" // requires_review
	BandLow    Band = "low"    // Discarded
)

// SignalCategory names one weighted extraction signal
type SignalCategory string

const (
	SignalDealType  SignalCategory = "deal_type"
	SignalCompany   SignalCategory = "company"
	SignalValue     SignalCategory = "value"
	SignalIndustry  SignalCategory = "industry"
	SignalGeography SignalCategory = "geography"
	SignalAdvisor   SignalCategory = "advisor"
	SignalDate      SignalCategory = "date"
	SignalStatus    SignalCategory = "status"
)

// DealValue is an amount in a currency
type DealValue struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217
}

// AdvisorRole separates bankers from lawyers
type AdvisorRole string

const (
	AdvisorFinancial AdvisorRole = "financial"
	AdvisorLegal     AdvisorRole = "legal"
)

// Advisor is a firm named as advising on a deal
type Advisor struct {
	Name string      `json:"name"`
	Role AdvisorRole `json:"role"`
}

// ExtractedDeal is one structured deal record
type ExtractedDeal struct {
	ID                 string           `json:"id"`
	DealType           DealType         `json:"deal_type"`
	DealStatus         DealStatus       `json:"deal_status"`
	TargetCompany      string           `json:"target_company"`
	TargetTicker       string           `json:"target_ticker,omitempty"`
	AcquirerCompany    *string          `json:"acquirer_company,omitempty"`
	AcquirerTicker     string           `json:"acquirer_ticker,omitempty"`
	Value              *DealValue       `json:"deal_value,omitempty"`
	Structure          DealStructure    `json:"structure,omitempty"`
	IndustryTag        *string          `json:"industry_tag,omitempty"`
	GeographyTag       *string          `json:"geography_tag,omitempty"`
	Advisors           []Advisor        `json:"advisors,omitempty"`
	AnnouncementDate   *time.Time       `json:"announcement_date,omitempty"`
	ExpectedCompletion *time.Time       `json:"expected_completion,omitempty"`
	Confidence         float64          `json:"confidence_score"`
	Band               Band             `json:"band"`
	Signals            []SignalCategory `json:"signals"`
	SourceURL          string           `json:"source_url"`
	SourceID           string           `json:"source_id"`
	ArticlePublishedAt *time.Time       `json:"article_published_at,omitempty"`
	DuplicateOf        *string          `json:"duplicate_of,omitempty"`
	EnrichmentError    string           `json:"enrichment_error,omitempty"`
}

// RequiresReview reports whether the deal must be checked by a human
func (d ExtractedDeal) RequiresReview() bool {
	return d.Band == BandMedium
}

// Acquirer returns the acquirer name or ""
func (d ExtractedDeal) Acquirer() string {
	if d.AcquirerCompany == nil {
		return ""
	}
	return *d.AcquirerCompany
}

// DuplicateLink records that one deal was merged into another
type DuplicateLink struct {
	DuplicateID  string `json:"duplicate_id"`
	SurvivorID   string `json:"survivor_id"`
	Key          string `json:"dedup_key"`
	DuplicateURL string `json:"duplicate_url"`
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
