package analyze

import "time"

// dateLayouts is the fixed ordered list of accepted date formats. Order
// matters: earlier layouts win, so unambiguous ISO forms are preferred over
// the ambiguous day/month numeric forms, and DD/MM beats MM/DD on ties.
var dateLayouts = []string{
	"2006-01-02",       // ISO date
	"02/01/2006",       // DD/MM/YYYY
	"01/02/2006",       // MM/DD/YYYY
	"2006/01/02",       // YYYY/MM/DD
	"02-01-2006",       // DD-MM-YYYY
	"2006-01-02T15:04:05", // ISO datetime
	"01/02/2006 15:04", // MM/DD/YYYY HH:MM
}

// detectDateLayout returns the first layout under which every value parses.
func detectDateLayout(values []string) (string, bool) {
	for _, layout := range dateLayouts {
		ok := true
		for _, v := range values {
			if _, err := time.Parse(layout, v); err != nil {
				ok = false
				break
			}
		}
		if ok {
			return layout, true
		}
	}
	return "", false
}

// ParseDate parses v under the accepted layouts, preferring the given layout.
func ParseDate(v, layout string) (time.Time, bool) {
	if layout != "" {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
