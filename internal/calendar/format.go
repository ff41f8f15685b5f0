package calendar

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

var englishWeekdays = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// dateLocale holds the names and the long-date pattern of one supported UI
// locale. render receives the weekday and month names already resolved.
type dateLocale struct {
	weekdays [7]string
	months   [12]string
	render   func(weekday, month string, day, year int) string
}

var englishLocale = dateLocale{
	weekdays: englishWeekdays,
	months: [12]string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"},
	render: func(wd, m string, d, y int) string { return fmt.Sprintf("%s, %s %d, %d", wd, m, d, y) },
}

// supportedTags and dateLocales are index-aligned; the first entry is the
// fallback for unmatched tags.
var (
	supportedTags = []language.Tag{
		language.English,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Dutch,
		language.Spanish,
	}
	dateLocales = []dateLocale{
		englishLocale,
		{
			weekdays: englishLocale.weekdays,
			months:   englishLocale.months,
			render:   func(wd, m string, d, y int) string { return fmt.Sprintf("%s %d %s %d", wd, d, m, y) },
		},
		{
			weekdays: [7]string{"Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag", "Sonntag"},
			months: [12]string{"Januar", "Februar", "März", "April", "Mai", "Juni",
				"Juli", "August", "September", "Oktober", "November", "Dezember"},
			render: func(wd, m string, d, y int) string { return fmt.Sprintf("%s, %d. %s %d", wd, d, m, y) },
		},
		{
			weekdays: [7]string{"lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi", "dimanche"},
			months: [12]string{"janvier", "février", "mars", "avril", "mai", "juin",
				"juillet", "août", "septembre", "octobre", "novembre", "décembre"},
			render: func(wd, m string, d, y int) string { return fmt.Sprintf("%s %d %s %d", wd, d, m, y) },
		},
		{
			weekdays: [7]string{"maandag", "dinsdag", "woensdag", "donderdag", "vrijdag", "zaterdag", "zondag"},
			months: [12]string{"januari", "februari", "maart", "april", "mei", "juni",
				"juli", "augustus", "september", "oktober", "november", "december"},
			render: func(wd, m string, d, y int) string { return fmt.Sprintf("%s %d %s %d", wd, d, m, y) },
		},
		{
			weekdays: [7]string{"lunes", "martes", "miércoles", "jueves", "viernes", "sábado", "domingo"},
			months: [12]string{"enero", "febrero", "marzo", "abril", "mayo", "junio",
				"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
			render: func(wd, m string, d, y int) string { return fmt.Sprintf("%s, %d de %s de %d", wd, d, m, y) },
		},
	}
	localeMatcher = language.NewMatcher(supportedTags)
)

// ParseLocale parses a BCP 47 tag such as "de-DE" or "en_GB". Unparsable
// input yields language.English.
func ParseLocale(s string) language.Tag {
	tag, err := language.Parse(s)
	if err != nil {
		return language.English
	}
	return tag
}

// FormatLocal renders d as a long date in the closest supported locale.
//
// The date is taken as local midnight in loc, never UTC midnight, so the
// rendered day is always d itself.
func FormatLocal(d Date, tag language.Tag, loc *time.Location) string {
	_, idx, _ := localeMatcher.Match(tag)
	if idx < 0 || idx >= len(dateLocales) {
		idx = 0
	}
	l := dateLocales[idx]

	t := d.Time(loc)
	wd := ISOWeekday(t)
	return l.render(l.weekdays[wd-1], l.months[t.Month()-1], t.Day(), t.Year())
}
