package bill

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/locales/fr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateLayout is the layout of Bill.Date
const DateLayout = "2006-01-02"

var (
	frLocale = fr.New()
	frTitle  = cases.Title(language.French)
)

// FormatDate turns a YYYY-MM-DD date into the short French form used in lists, e.g. "4 Avr. 04"
func FormatDate(date string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("parsing date %q: %w", date, err)
	}

	month := []rune(strings.TrimSuffix(frLocale.MonthAbbreviated(t.Month()), "."))
	if len(month) > 3 {
		month = month[:3]
	}

	return fmt.Sprintf("%d %s. %02d", t.Day(), frTitle.String(string(month)), t.Year()%100), nil
}

// FormatStatus returns the French label of a status code
func FormatStatus(status Status) string {
	switch status {
	case StatusPending:
		return "En attente"
	case StatusAccepted:
		return "Accepté"
	case StatusRefused:
		return "Refusé"
	default:
		return string(status)
	}
}
