package enrich

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/mergertracker/internal/util"
)

//go:embed reference.yaml
var defaultTableYAML []byte

// TableFile is the on-disk layout of a reference table
type TableFile struct {
	Companies  map[string]CompanyEntry `yaml:"companies"`
	Industries map[string][]string     `yaml:"industries"`
	Locations  map[string]string       `yaml:"locations"` // Location keyword -> region
}

// CompanyEntry is the reference classification of one company
type CompanyEntry struct {
	Industry string   `yaml:"industry"`
	Region   string   `yaml:"region"`
	Aliases  []string `yaml:"aliases,omitempty"`
}

// Table is the shipped ReferenceData: an exact company table backed by
// industry and location keyword sets. It is immutable after load.
type Table struct {
	companies  map[string]CompanyEntry
	industries []keywordSet
	locations  []keywordSet
}

type keywordSet struct {
	tag      string
	keywords []string
	pattern  *regexp.Regexp
}

// DefaultTable returns the built-in reference table
func DefaultTable() *Table {
	t, err := ParseTable(defaultTableYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in reference table: %v", err))
	}
	return t
}

// LoadTable reads a reference table from a YAML file
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable compiles a reference table from YAML
func ParseTable(data []byte) (*Table, error) {
	var f TableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reference table: %w", err)
	}

	t := &Table{companies: make(map[string]CompanyEntry)}
	for name, entry := range f.Companies {
		for _, n := range append([]string{name}, entry.Aliases...) {
			if key := util.NormalizeCompany(n); key != "" {
				t.companies[key] = entry
			}
		}
	}

	for _, tag := range sortedKeys(f.Industries) {
		t.industries = append(t.industries, newKeywordSet(tag, f.Industries[tag]))
	}

	byRegion := make(map[string][]string)
	for keyword, region := range f.Locations {
		byRegion[region] = append(byRegion[region], keyword)
	}
	for _, region := range sortedKeys(byRegion) {
		t.locations = append(t.locations, newKeywordSet(region, byRegion[region]))
	}
	return t, nil
}

func newKeywordSet(tag string, keywords []string) keywordSet {
	clean := make([]string, 0, len(keywords))
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		clean = append(clean, k)
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	sort.Strings(clean)
	sort.Strings(quoted)
	set := keywordSet{tag: tag, keywords: clean}
	if len(quoted) > 0 {
		set.pattern = regexp.MustCompile(`(?:^|[^a-z0-9])(?:` + strings.Join(quoted, "|") + `)(?:$|[^a-z0-9])`)
	}
	return set
}

// LookupCompany classifies a company by exact table entry, falling back to
// keywords found in the name itself
func (t *Table) LookupCompany(ctx context.Context, name string) (string, string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", "", false, err
	}
	key := util.NormalizeCompany(name)
	if key == "" {
		return "", "", false, nil
	}
	if entry, ok := t.companies[key]; ok {
		return entry.Industry, entry.Region, true, nil
	}

	industry := t.IndustryFor(key)
	region := t.RegionFor(key)
	return industry, region, industry != "" || region != "", nil
}

// IndustryFor returns the first industry whose keywords appear in text.
// Keywords of four or more letters also match inside words, so "TechCorp"
// counts as technology.
func (t *Table) IndustryFor(text string) string {
	lower := strings.ToLower(text)
	for _, set := range t.industries {
		for _, k := range set.keywords {
			if len(k) >= 4 && strings.Contains(lower, k) {
				return set.tag
			}
		}
	}
	for _, set := range t.industries {
		if set.pattern != nil && set.pattern.MatchString(lower) {
			return set.tag
		}
	}
	return ""
}

// RegionFor returns the region of the first location keyword found in text
func (t *Table) RegionFor(text string) string {
	lower := strings.ToLower(text)
	for _, set := range t.locations {
		if set.pattern != nil && set.pattern.MatchString(lower) {
			return set.tag
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
