package mapping

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
)

// tierCodes maps the cell codes found in curriculum mapping spreadsheets.
var tierCodes = map[string]outcome.ContributionTier{
	"h": outcome.TierMajor,
	"m": outcome.TierMajor,
	"a": outcome.TierMajor,
	"n": outcome.TierNeutral,
	"r": outcome.TierNeutral,
	"✓": outcome.TierNeutral,
	"v": outcome.TierNeutral,
	"s": outcome.TierLow,
	"l": outcome.TierLow,
	"i": outcome.TierLow,
	"x": outcome.TierLow,
}

// ParseTierCode converts a spreadsheet cell into a tier. Blank cells, "-",
// numbers and unknown codes mean no mapping.
func ParseTierCode(cell string) outcome.ContributionTier {
	code := strings.ToLower(strings.TrimSpace(cell))
	if code == "" || code == "-" {
		return outcome.TierNone
	}
	if _, err := strconv.ParseFloat(code, 64); err == nil {
		return outcome.TierNone
	}
	if tier, ok := tierCodes[code]; ok {
		return tier
	}
	return outcome.TierNone
}

var columnNumber = regexp.MustCompile(`(ELO|PLO)\s*(\d+)`)

// ColumnResolver finds the program outcome a spreadsheet column header
// stands for: by code ("PLO1", "ELO 2"), then by the number in the header
// as a 1-based position in the program's outcome list.
type ColumnResolver struct {
	byCode  map[string]*outcome.ProgramOutcome
	ordered []*outcome.ProgramOutcome
}

// NewColumnResolver indexes plos, which must be in display order.
func NewColumnResolver(plos []*outcome.ProgramOutcome) *ColumnResolver {
	r := &ColumnResolver{
		byCode:  make(map[string]*outcome.ProgramOutcome, len(plos)*2),
		ordered: plos,
	}
	for _, p := range plos {
		code := strings.ToUpper(strings.TrimSpace(p.Code))
		if code == "" {
			continue
		}
		r.byCode[code] = p
		if m := columnNumber.FindStringSubmatch(code); m != nil {
			r.byCode[m[1]+m[2]] = p
		}
	}
	return r
}

// Resolve returns the program outcome for header, or false.
func (r *ColumnResolver) Resolve(header string) (*outcome.ProgramOutcome, bool) {
	label := strings.ToUpper(strings.TrimSpace(header))
	if p, ok := r.byCode[label]; ok {
		return p, true
	}
	if m := columnNumber.FindStringSubmatch(label); m != nil {
		if p, ok := r.byCode[m[1]+m[2]]; ok {
			return p, true
		}
	}
	if m := firstNumber.FindString(label); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n >= 1 && n <= len(r.ordered) {
			return r.ordered[n-1], true
		}
	}
	return nil, false
}

var firstNumber = regexp.MustCompile(`\d+`)
