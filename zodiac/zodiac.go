// Package zodiac maps birth dates to western zodiac signs.
package zodiac

import (
	"fmt"
	"time"
)

// Unknown is returned for dates outside every range
const Unknown = "Desconhecido"

// BirthDateLayout is the stored birth date format
const BirthDateLayout = "2006-01-02"

type signRange struct {
	name       string
	startMonth time.Month
	startDay   int
	endMonth   time.Month
	endDay     int
}

// Capricorn wraps the year end and is handled separately.
var signs = []signRange{
	{"Aquário", time.January, 21, time.February, 18},
	{"Peixes", time.February, 19, time.March, 20},
	{"Áries", time.March, 21, time.April, 20},
	{"Touro", time.April, 21, time.May, 20},
	{"Gêmeos", time.May, 21, time.June, 20},
	{"Câncer", time.June, 21, time.July, 22},
	{"Leão", time.July, 23, time.August, 22},
	{"Virgem", time.August, 23, time.September, 22},
	{"Libra", time.September, 23, time.October, 22},
	{"Escorpião", time.October, 23, time.November, 21},
	{"Sagitário", time.November, 22, time.December, 21},
}

// SignFor returns the sign for a day and month
func SignFor(day int, month time.Month) string {
	if (month == time.December && day >= 22) || (month == time.January && day <= 20) {
		return "Capricórnio"
	}
	for _, s := range signs {
		if (month == s.startMonth && day >= s.startDay) || (month == s.endMonth && day <= s.endDay) {
			return s.name
		}
	}
	return Unknown
}

// ParseBirthDate validates a YYYY-MM-DD birth date
func ParseBirthDate(value string) (time.Time, error) {
	t, err := time.Parse(BirthDateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid birth date %q: %w", value, err)
	}
	return t, nil
}

// SignForBirthDate returns the sign for a YYYY-MM-DD birth date
func SignForBirthDate(value string) (string, error) {
	t, err := ParseBirthDate(value)
	if err != nil {
		return Unknown, err
	}
	return SignFor(t.Day(), t.Month()), nil
}
