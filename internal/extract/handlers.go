package extract

import (
	"strings"

	"github.com/ppiankov/mergertracker/internal/model"
)

// roles is a handler's partial match: the parties of one deal
type roles struct {
	acquirer *name
	target   *name
}

// handler assigns deal roles from the names found in a window. s is the
// window text, lower its ASCII-lowercased copy.
type handler func(s, lower string, names []name, kw keywordMatch) roles

var handlers = map[model.DealType]handler{
	model.DealAcquisition: acquisitionRoles,
	model.DealMerger:      mergerRoles,
	model.DealIPO:         ipoRoles,
	model.DealDivestiture: divestitureRoles,
}

// leadWords may sit between a subject and its deal verb:
// "X agreed to acquire", "X said it would buy", "X is in talks to purchase"
var leadWords = wordSet(
	"agrees", "agreed", "agree", "to", "will", "would", "has", "have", "had", "is", "was", "are",
	"plans", "planned", "plan", "said", "says", "it", "announced", "announces", "that", "be", "set",
	"reached", "signed", "an", "a", "agreement", "definitive", "move", "moves", "moved", "offered",
	"offers", "offer", "completed", "completes", "finalized", "in", "talks", "reportedly", "considering",
	"exploring", "weighing", "nears", "nearing", "seeks", "seeking", "made", "makes", "launched",
	"launches", "its", "proposed", "proposes", "the", "also", "now", "officially", "successfully",
	"recently", "today", "on", "monday", "tuesday", "wednesday", "thursday", "friday", "intends",
	"intend", "expects", "expected", "aims", "could", "may", "might", "for",
)

// objectWords may sit between a deal verb and its object:
// "acquire rival X", "buy a 51% stake in X"
var objectWords = wordSet(
	"rival", "its", "the", "a", "an", "of", "with", "smaller", "fellow", "startup", "firm", "company",
	"all", "remaining", "outstanding", "shares", "stake", "in", "majority", "minority", "controlling",
	"peer", "competitor", "between", "rest", "parent", "owner", "maker", "group",
)

const (
	maxLeadGap   = 5
	maxObjectGap = 5
)

func acquisitionRoles(s, lower string, names []name, kw keywordMatch) roles {
	after := lower[kw.end:]

	// "TechCorp was acquired by BigCo", "DataSoft, bought by BigCo"
	if strings.HasPrefix(after, " by ") {
		target := subjectBefore(s, names, kw.start)
		acquirer := objectAfter(s, names, kw.end+len(" by"))
		return roles{acquirer: acquirer, target: target}
	}

	// "BigCo's acquisition of DataSoft", "the acquisition of DataSoft by BigCo"
	if (kw.text == "acquisition" || kw.text == "purchase" || kw.text == "takeover" || kw.text == "buyout") &&
		strings.HasPrefix(after, " of ") {
		target := objectAfter(s, names, kw.end+len(" of"))
		if target == nil {
			return roles{}
		}
		var acquirer *name
		if i := strings.Index(lower[target.end:], " by "); i >= 0 {
			acquirer = objectAfter(s, names, target.end+i+len(" by"))
		}
		if acquirer == nil {
			acquirer = subjectBefore(s, names, kw.start)
		}
		return roles{acquirer: acquirer, target: target}
	}

	return roles{
		acquirer: subjectBefore(s, names, kw.start),
		target:   objectAfter(s, names, kw.end),
	}
}

// mergerRoles takes the first two names: the first is treated as the
// target and the second as the surviving acquirer
func mergerRoles(s, lower string, names []name, kw keywordMatch) roles {
	distinct := make([]*name, 0, 2)
	for i := range names {
		if len(distinct) > 0 && strings.EqualFold(distinct[0].text, names[i].text) {
			continue
		}
		distinct = append(distinct, &names[i])
		if len(distinct) == 2 {
			break
		}
	}
	switch len(distinct) {
	case 0:
		return roles{}
	case 1:
		return roles{target: distinct[0]}
	default:
		return roles{target: distinct[0], acquirer: distinct[1]}
	}
}

func ipoRoles(s, lower string, names []name, kw keywordMatch) roles {
	target := subjectBefore(s, names, kw.start)
	if target == nil {
		target = objectAfter(s, names, kw.end)
	}
	return roles{target: target}
}

// divestitureRoles takes the divested business after the verb and the buyer
// after "to". "X sells its cloud unit to Y" has no named asset, so the
// seller stands in as target.
func divestitureRoles(s, lower string, names []name, kw keywordMatch) roles {
	target := objectAfter(s, names, kw.end)
	if target != nil && strings.Contains(lower[kw.end:target.start], " to ") {
		return roles{acquirer: target, target: subjectBefore(s, names, kw.start)}
	}
	if target == nil {
		if to := strings.Index(lower[kw.end:], " to "); to >= 0 {
			return roles{
				acquirer: firstFrom(names, kw.end+to),
				target:   subjectBefore(s, names, kw.start),
			}
		}
		return roles{target: subjectBefore(s, names, kw.start)}
	}

	var acquirer *name
	if to := strings.Index(lower[target.end:], " to "); to >= 0 {
		acquirer = firstFrom(names, target.end+to)
	}
	return roles{acquirer: acquirer, target: target}
}

// subjectBefore picks the subject of a verb at pos: the name immediately before it
// (allowing auxiliary words in between), else the nearest suffixed name
func subjectBefore(s string, names []name, pos int) *name {
	var nearest *name
	for i := len(names) - 1; i >= 0; i-- {
		n := &names[i]
		if n.end > pos {
			continue
		}
		if gapOf(s[n.end:pos], leadWords, maxLeadGap) {
			return n
		}
		if nearest == nil && n.suffixed {
			nearest = n
		}
	}
	return nearest
}

// objectAfter picks the object of a verb ending at pos: the name right after it
// (allowing a few determiners), else the first suffixed name that follows
func objectAfter(s string, names []name, pos int) *name {
	var first *name
	for i := range names {
		n := &names[i]
		if n.start < pos {
			continue
		}
		if gapOf(s[pos:n.start], objectWords, maxObjectGap) {
			return n
		}
		if first == nil && n.suffixed {
			first = n
		}
	}
	return first
}

func firstFrom(names []name, pos int) *name {
	for i := range names {
		if names[i].start >= pos {
			return &names[i]
		}
	}
	return nil
}

// gapOf reports whether gap holds at most limit words, all from allowed.
// Ticker spans are ignored and percentages ("a 51% stake") are allowed.
func gapOf(gap string, allowed map[string]bool, limit int) bool {
	gap = tickerRe.ReplaceAllString(gap, " ")
	words := strings.FieldsFunc(strings.ToLower(gap), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ','
	})
	if len(words) > limit {
		return false
	}
	for _, w := range words {
		w = strings.Trim(w, `"'“”‘’()`)
		if w == "" || allowed[w] || strings.HasSuffix(w, "%") {
			continue
		}
		return false
	}
	return true
}
