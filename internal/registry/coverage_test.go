package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/regeindary/internal/record"
)

func TestCoverage_WithoutHeaders(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "acnc.json"))
	require.NoError(t, err)

	report := def.Coverage(record.LevelEntities, nil)
	assert.Equal(t, record.LevelEntities, report.Level)
	assert.Equal(t, []MappedTarget{
		{Target: "entityId", Origin: "ABN", Present: true},
		{Target: "entityName", Origin: "Charity_Legal_Name", Present: true},
		{Target: "postcode", Origin: "Postcode", Present: true},
	}, report.Mapped)
	assert.Len(t, report.Unmapped, len(record.Targets)-3)
	assert.NotContains(t, report.Unmapped, "entityId")
	assert.Nil(t, report.Suggestions)
	assert.Nil(t, report.UnusedHeaders)
}

func TestCoverage_WithHeaders(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "acnc.json"))
	require.NoError(t, err)

	headers := []string{"ABN", "Charity_Legal_Name", "Charity_Website", "Date_Organisation_Established", "Town_City"}
	report := def.Coverage(record.LevelEntities, headers)

	for _, m := range report.Mapped {
		if m.Target == "postcode" {
			assert.False(t, m.Present, "Postcode is not a header")
		} else {
			assert.True(t, m.Present, m.Target)
		}
	}
	assert.Equal(t, []string{"Charity_Website", "Date_Organisation_Established", "Town_City"}, report.UnusedHeaders)
	assert.Equal(t, []string{"Charity_Website"}, report.Suggestions["websiteUrl"])
	assert.Equal(t, []string{"Date_Organisation_Established"}, report.Suggestions["establishedDate"])
	assert.NotContains(t, report.Suggestions, "locality")
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		target string
		want   []string
	}{
		{"totalIncome", []string{"income"}},
		{"entityId", []string{"entity"}},
		{"websiteUrl", []string{"website"}},
		{"fiscalYearEnd", []string{"fiscal", "year", "end"}},
		{"email", []string{"email"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, keywords(tt.target))
		})
	}
}

func TestMatchesKeywords(t *testing.T) {
	assert.True(t, matchesKeywords("Total Revenue", []string{"income"}))
	assert.True(t, matchesKeywords("ZIP_CODE", []string{"postcode"}))
	assert.True(t, matchesKeywords("FY-End (Fiscal Year)", []string{"fiscal", "year", "end"}))
	assert.False(t, matchesKeywords("Town_City", []string{"postcode"}))
	assert.False(t, matchesKeywords("anything", nil))
}
