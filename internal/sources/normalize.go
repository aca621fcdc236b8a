package sources

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/TorusGroup/reunia/internal/models"
)

// stripMarks decomposes to NFD, drops combining diacritical marks and
// recomposes, so "José" and "Jose" normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName derives the canonical comparison key from first/last name:
// diacritics stripped, lowercased, whitespace collapsed. Every adapter must
// go through this function so the key is computed identically everywhere.
func NormalizeName(firstName, lastName *string) string {
	parts := make([]string, 0, 2)
	if firstName != nil && strings.TrimSpace(*firstName) != "" {
		parts = append(parts, *firstName)
	}
	if lastName != nil && strings.TrimSpace(*lastName) != "" {
		parts = append(parts, *lastName)
	}
	joined := strings.Join(parts, " ")
	if joined == "" {
		return ""
	}

	stripped, _, err := transform.String(stripMarks, joined)
	if err != nil {
		stripped = joined
	}
	lower := strings.ToLower(stripped)
	return strings.Join(strings.Fields(lower), " ")
}

var (
	feetInchesRe = regexp.MustCompile(`(\d+)\s*(?:'|ft\.?|feet|foot)\s*(\d+)?\s*(?:"|''|in\.?|inches)?`)
	bareInchesRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:"|in\.?|inches|inch)\b`)
	bareCmRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:cm|centimeters?)\b`)

	lbsRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:lbs?\.?|pounds?)\b`)
	kgRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:kgs?\.?|kilograms?)\b`)
)

// ParseHeightCm converts a free-form height string to centimeters.
// Recognized formats, first match wins: feet/inches (5'4", 5 ft 4 in),
// bare inches (64 in), bare centimeters (163 cm). Unrecognized formats
// return nil rather than an error.
func ParseHeightCm(s string) *int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}

	if m := feetInchesRe.FindStringSubmatch(s); m != nil {
		feet, _ := strconv.Atoi(m[1])
		inches := 0
		if m[2] != "" {
			inches, _ = strconv.Atoi(m[2])
		}
		cm := int(math.Round(float64(feet*12+inches) * 2.54))
		return &cm
	}
	if m := bareInchesRe.FindStringSubmatch(s); m != nil {
		in, _ := strconv.ParseFloat(m[1], 64)
		cm := int(math.Round(in * 2.54))
		return &cm
	}
	if m := bareCmRe.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		cm := int(math.Round(v))
		return &cm
	}
	return nil
}

// ParseWeightKg converts a free-form weight string to kilograms, rounded to
// the nearest kg. Recognized formats: pounds (120 lbs, 120.5 pounds) and
// kilograms (54 kg). Unrecognized formats return nil.
func ParseWeightKg(s string) *int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}

	if m := lbsRe.FindStringSubmatch(s); m != nil {
		lbs, _ := strconv.ParseFloat(m[1], 64)
		kg := int(math.Round(lbs * 0.45359237))
		return &kg
	}
	if m := kgRe.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		kg := int(math.Round(v))
		return &kg
	}
	return nil
}

// genderSynonyms covers the locales the feeds actually use (en, es, fr).
var genderSynonyms = map[string]models.Gender{
	"male": models.GenderMale, "m": models.GenderMale, "boy": models.GenderMale,
	"man": models.GenderMale, "masculino": models.GenderMale, "homme": models.GenderMale,
	"masculin": models.GenderMale, "garcon": models.GenderMale,

	"female": models.GenderFemale, "f": models.GenderFemale, "girl": models.GenderFemale,
	"woman": models.GenderFemale, "femenino": models.GenderFemale, "femme": models.GenderFemale,
	"feminin": models.GenderFemale, "fille": models.GenderFemale,

	"other": models.GenderOther, "nonbinary": models.GenderOther, "non-binary": models.GenderOther,
	"x": models.GenderOther,
}

// NormalizeGender maps a source gender string to one of the four canonical
// values. Unknown values map to GenderUnknown, never to an empty value,
// so that matching logic stays total.
func NormalizeGender(s string) models.Gender {
	key, _, err := transform.String(stripMarks, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		key = strings.ToLower(strings.TrimSpace(s))
	}
	if g, ok := genderSynonyms[key]; ok {
		return g
	}
	return models.GenderUnknown
}

// NormalizeCountry returns an upper-cased 2-letter country code, or nil when
// the input is not one.
func NormalizeCountry(s string) *string {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return nil
	}
	up := strings.ToUpper(s)
	for _, r := range up {
		if r < 'A' || r > 'Z' {
			return nil
		}
	}
	return &up
}

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
}

// ParseDate tries the known feed date formats and returns nil on no match.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
