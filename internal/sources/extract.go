package sources

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/TorusGroup/reunia/internal/models"
)

// Free-text extraction helpers for sources that publish prose instead of
// structured fields. All of these are best-effort: every input yields a
// result (possibly nil/default), none of them ever fail.

var (
	ageRe = regexp.MustCompile(`(?i)\b(\d{1,2})[\s-]*(?:year|yr)s?[\s-]*old\b`)
	// no (?i) here: the place capture relies on capitalization. Periods are
	// excluded from the word class so the capture stops at a sentence break.
	locationRe = regexp.MustCompile(`\b[Ll]ast seen (?:in|near|at)\s+([A-Z][A-Za-z'-]*(?:[\s,]+[A-Z][A-Za-z'-]*)*)`)
	capRunRe   = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`)
)

// ExtractAge finds an "N-year-old" pattern in prose. Returns nil on no match
// or an implausible value.
func ExtractAge(text string) *int {
	m := ageRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	age, err := strconv.Atoi(m[1])
	if err != nil || age <= 0 || age > 99 {
		return nil
	}
	return &age
}

// ExtractGender looks for gendered keywords in prose. The first keyword
// found wins; no keyword yields GenderUnknown.
func ExtractGender(text string) models.Gender {
	lower := " " + strings.ToLower(text) + " "
	maleIdx := earliestKeyword(lower, []string{"boy", "male", "man", "he ", "his ", "him "})
	femaleIdx := earliestKeyword(lower, []string{"girl", "female", "woman", "she ", "her "})

	switch {
	case maleIdx < 0 && femaleIdx < 0:
		return models.GenderUnknown
	case femaleIdx < 0 || (maleIdx >= 0 && maleIdx < femaleIdx):
		return models.GenderMale
	default:
		return models.GenderFemale
	}
}

func earliestKeyword(lower string, keywords []string) int {
	best := -1
	for _, kw := range keywords {
		if idx := strings.Index(lower, " "+kw); idx >= 0 {
			if best < 0 || idx < best {
				best = idx
			}
		}
	}
	return best
}

// ExtractLocation finds a "last seen in/near X" phrase and returns the place
// text, trimmed of trailing punctuation. Nil on no match.
func ExtractLocation(text string) *string {
	m := locationRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	loc := strings.TrimRight(strings.TrimSpace(m[1]), ".,;")
	if loc == "" {
		return nil
	}
	return &loc
}

// ExtractName takes the first run of two or more capitalized words as a
// probable person name and splits it into first/last. Both return values are
// nil when no such run exists.
func ExtractName(text string) (firstName, lastName *string) {
	m := capRunRe.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	words := strings.Fields(m[1])
	first := words[0]
	last := strings.Join(words[1:], " ")
	return &first, &last
}
