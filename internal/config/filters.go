package config

import (
	"strings"
	"time"
)

// FilterDateLayout is the portal's DD-Mon-YYYY date format used in search parameters.
const FilterDateLayout = "02-Jan-2006"

// ResolveFilters expands the TODAY, YESTERDAY and AUTO keywords relative to now
// in loc. AUTO sets the window to yesterday..today, overriding both bounds.
func ResolveFilters(f FiltersConfig, now time.Time, loc *time.Location) FiltersConfig {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	today := now.Format(FilterDateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(FilterDateLayout)

	if strings.EqualFold(f.PublishDateFrom, "AUTO") || strings.EqualFold(f.PublishDateTo, "AUTO") {
		f.PublishDateFrom = yesterday
		f.PublishDateTo = today
		return f
	}

	f.PublishDateFrom = resolveKeyword(f.PublishDateFrom, today, yesterday)
	f.PublishDateTo = resolveKeyword(f.PublishDateTo, today, yesterday)
	return f
}

func resolveKeyword(v, today, yesterday string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "TODAY":
		return today
	case "YESTERDAY":
		return yesterday
	}
	return strings.TrimSpace(v)
}
