// Package verdict defines the closed set of classification outcomes and the
// normalization table that maps the oracle's free-form vocabulary onto it.
package verdict

import (
	"strings"
	"time"
)

// Verdict is a classification outcome controlling presentation treatment.
// Pending and Unclassified are transient presentation states; the oracle
// never produces them.
type Verdict string

const (
	// Nourish marks content worth visually promoting.
	Nourish Verdict = "nourish"
	// Show marks content approved for display as-is.
	Show Verdict = "show"
	// Distill marks content displayed with a neutral rewrite.
	Distill Verdict = "distill"
	// Filter marks content that stays suppressed.
	Filter Verdict = "filter"
	// Pending is the fail-closed default before any verdict arrives.
	Pending Verdict = "pending"
	// Unclassified marks items whose transport to the oracle failed in a way
	// that is not a content decision. Distinguished from Filter so an operator
	// can tell "we don't know" from "we decided no".
	Unclassified Verdict = "unclassified"
)

// Terminal reports whether v is a terminal presentation state.
func (v Verdict) Terminal() bool {
	switch v {
	case Nourish, Show, Distill, Filter, Unclassified:
		return true
	}
	return false
}

// Visible reports whether content carrying v may be shown to the user.
func (v Verdict) Visible() bool {
	switch v {
	case Nourish, Show, Distill:
		return true
	}
	return false
}

// synonyms maps lowercase oracle labels onto the closed set. Anything absent
// from this table normalizes to Filter.
var synonyms = map[string]Verdict{
	"nourish":    Nourish,
	"beneficial": Nourish,
	"nurture":    Nourish,
	"promote":    Nourish,

	"show":    Show,
	"allow":   Show,
	"approve": Show,
	"keep":    Show,
	"display": Show,
	"visible": Show,

	"distill":   Distill,
	"rewrite":   Distill,
	"summarize": Distill,

	"filter":   Filter,
	"hide":     Filter,
	"block":    Filter,
	"remove":   Filter,
	"suppress": Filter,
}

// Normalize maps a raw oracle label onto the closed verdict set. Matching is
// case-insensitive; unknown, empty, or malformed labels fail closed to Filter.
func Normalize(raw string) Verdict {
	if v, ok := synonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return v
	}
	return Filter
}

// Priority orders verdicts for feed reordering; lower sorts first.
func Priority(v Verdict) int {
	switch v {
	case Nourish:
		return 0
	case Show:
		return 1
	case Distill:
		return 2
	case Filter:
		return 3
	default:
		return 4
	}
}

// Record is the outcome of classification for one fingerprint.
type Record struct {
	Verdict       Verdict   `json:"verdict"`
	Reason        string    `json:"reason,omitempty"`
	RewrittenText string    `json:"rewrittenText,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
