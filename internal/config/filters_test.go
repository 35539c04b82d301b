package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveFilters(t *testing.T) {
	t.Parallel()

	manila := time.FixedZone("PHT", 8*3600)
	// 2025-11-13 17:30 UTC is already 14-Nov in Manila.
	now := time.Date(2025, 11, 13, 17, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		in       FiltersConfig
		wantFrom string
		wantTo   string
	}{
		{"empty stays empty", FiltersConfig{}, "", ""},
		{"literal dates pass through", FiltersConfig{PublishDateFrom: "01-Nov-2025", PublishDateTo: " 05-Nov-2025 "}, "01-Nov-2025", "05-Nov-2025"},
		{"today", FiltersConfig{PublishDateFrom: "today"}, "14-Nov-2025", ""},
		{"yesterday and today", FiltersConfig{PublishDateFrom: "YESTERDAY", PublishDateTo: "TODAY"}, "13-Nov-2025", "14-Nov-2025"},
		{"auto overrides both", FiltersConfig{PublishDateFrom: "AUTO", PublishDateTo: "01-Jan-2020"}, "13-Nov-2025", "14-Nov-2025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ResolveFilters(tt.in, now, manila)
			assert.Equal(t, tt.wantFrom, got.PublishDateFrom)
			assert.Equal(t, tt.wantTo, got.PublishDateTo)
		})
	}
}

func TestResolveFilters_KeepsOtherFields(t *testing.T) {
	t.Parallel()

	in := FiltersConfig{Classification: "Goods", BusinessCategory: "Construction Projects"}
	got := ResolveFilters(in, time.Now(), nil)
	assert.Equal(t, in, got)
}
