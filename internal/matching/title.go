package matching

import (
	"fmt"
	"strings"

	"github.com/desertthunder/mangax/internal/models"
)

// UnknownTitle is displayed when a record carries no usable title.
const UnknownTitle = "Unknown"

// ParseTitleField maps a configured preference ("romaji", "english", "native") to a field.
func ParseTitleField(s string) (models.TitleField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "romaji", "primary":
		return models.FieldPrimary, nil
	case "english", "alternate":
		return models.FieldAlternate, nil
	case "native":
		return models.FieldNative, nil
	default:
		return models.FieldNone, fmt.Errorf("unknown title preference %q", s)
	}
}

// PreferredTitle picks the display title of c: the preferred field, then primary, alternate,
// native, the first synonym and finally [UnknownTitle].
func PreferredTitle(c models.CandidateRecord, pref models.TitleField) string {
	byField := map[models.TitleField]string{
		models.FieldPrimary:   c.Titles.Primary,
		models.FieldAlternate: c.Titles.Alternate,
		models.FieldNative:    c.Titles.Native,
	}

	if t := strings.TrimSpace(byField[pref]); t != "" {
		return t
	}

	for _, f := range []models.TitleField{models.FieldPrimary, models.FieldAlternate, models.FieldNative} {
		if t := strings.TrimSpace(byField[f]); t != "" {
			return t
		}
	}

	for _, syn := range c.Synonyms {
		if t := strings.TrimSpace(syn); t != "" {
			return t
		}
	}
	return UnknownTitle
}
