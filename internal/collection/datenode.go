package collection

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"time"

	"golang.org/x/text/language"
)

type dateLocale struct {
	weekdays [7]string
	months   [12]string
	format   func(l dateLocale, t time.Time) string
}

var dateLocales = []dateLocale{
	{
		weekdays: [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		months: [12]string{"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December"},
		format: func(l dateLocale, t time.Time) string {
			return fmt.Sprintf("%s, %s %d, %d", l.weekdays[t.Weekday()], l.months[t.Month()-1], t.Day(), t.Year())
		},
	},
	{
		weekdays: [7]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"},
		months: [12]string{"Januar", "Februar", "März", "April", "Mai", "Juni",
			"Juli", "August", "September", "Oktober", "November", "Dezember"},
		format: func(l dateLocale, t time.Time) string {
			return fmt.Sprintf("%s, %d. %s %d", l.weekdays[t.Weekday()], t.Day(), l.months[t.Month()-1], t.Year())
		},
	},
	{
		weekdays: [7]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"},
		months: [12]string{"janvier", "février", "mars", "avril", "mai", "juin",
			"juillet", "août", "septembre", "octobre", "novembre", "décembre"},
		format: func(l dateLocale, t time.Time) string {
			return fmt.Sprintf("%s %d %s %d", l.weekdays[t.Weekday()], t.Day(), l.months[t.Month()-1], t.Year())
		},
	},
}

// Order matches dateLocales.
var dateMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.German,
	language.French,
})

// FormatDateHeading renders t as a long date in the given BCP 47 locale.
// Unsupported locales fall back to English.
func FormatDateHeading(locale string, t time.Time) string {
	idx := 0
	if tag, err := language.Parse(locale); err == nil {
		_, i, conf := dateMatcher.Match(tag)
		if conf != language.No {
			idx = i
		}
	}
	l := dateLocales[idx]
	return l.format(l, t)
}

// DateNodePath returns the note path for date under role:
// <stack>/<YYYY>/<MM>/<DD>.md. A configured special stack named role
// supplies the stack; otherwise role is the stack path itself.
func (c *Collection) DateNodePath(role string, date time.Time) string {
	base := role
	if rel, ok := c.cfg.SpecialStacks[role]; ok {
		base = rel
	}
	base = c.normalize(base)
	if base == "." {
		base = ""
	}
	return path.Join(base,
		strconv.Itoa(date.Year()),
		fmt.Sprintf("%02d", int(date.Month())),
		fmt.Sprintf("%02d.md", date.Day()))
}

// CreateDateNode returns the note for date, creating it with a heading line
// when absent. Repeated calls return the same note and never rewrite it.
func (c *Collection) CreateDateNode(role string, date time.Time) (*Note, error) {
	rel := c.DateNodePath(role, date)
	heading := "# " + FormatDateHeading(c.cfg.Locale, date) + "\n"
	err := c.store.Create(rel, []byte(heading))
	switch {
	case err == nil:
		c.logger.Debug("collection: date node created", slog.String("path", rel))
	case errors.Is(err, fs.ErrExist):
	default:
		return nil, fmt.Errorf("collection: create date node %s: %w", rel, err)
	}
	return c.noteAt(rel)
}

// DateNode returns the existing note for date without creating it.
func (c *Collection) DateNode(role string, date time.Time) (*Note, bool) {
	return c.NoteByPath(c.DateNodePath(role, date))
}
