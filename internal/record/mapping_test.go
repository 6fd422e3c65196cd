package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldMapping_Validate(t *testing.T) {
	valid := FieldMapping{
		{Origin: "ABN", Target: FieldEntityID},
		{Origin: "Date", Target: FieldEstablishedDate, Format: "date:02/01/2006"},
		{Origin: "Income", Target: "totalIncome", Format: FormatNumber, Levels: []string{LevelFilings}},
	}
	require.NoError(t, valid.Validate())

	invalid := FieldMapping{
		{Origin: "", Target: FieldEntityID},
		{Origin: "A", Target: "notATarget"},
		{Origin: "A", Target: FieldEntityName},
		{Origin: "B", Target: FieldEntityName, Format: "yaml"},
		{Origin: "C", Target: FieldEntityName, Levels: []string{"people"}},
	}
	err := invalid.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty origin")
	assert.Contains(t, err.Error(), `unknown target "notATarget"`)
	assert.Contains(t, err.Error(), `origin "A" already mapped`)
	assert.Contains(t, err.Error(), `unknown format hint "yaml"`)
	assert.Contains(t, err.Error(), `unknown level "people"`)
}

func TestFieldMapping_ForLevel(t *testing.T) {
	m := FieldMapping{
		{Origin: "a", Target: FieldEntityID},
		{Origin: "b", Target: FieldEntityName, Levels: []string{LevelEntities}},
		{Origin: "c", Target: "totalIncome", Levels: []string{LevelFilings}},
	}

	entities := m.ForLevel(LevelEntities)
	filings := m.ForLevel(LevelFilings)

	assert.Equal(t, []string{"a", "b"}, origins(entities))
	assert.Equal(t, []string{"a", "c"}, origins(filings))
}

func TestFieldMapping_OriginFor(t *testing.T) {
	m := FieldMapping{{Origin: "EIN", Target: FieldEntityID}}

	origin, ok := m.OriginFor(FieldEntityID)
	assert.True(t, ok)
	assert.Equal(t, "EIN", origin)

	_, ok = m.OriginFor(FieldFilingID)
	assert.False(t, ok)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "", KeyString(nil))
	assert.Equal(t, "42", KeyString(42))
	assert.Equal(t, "42", KeyString(42.0))
	assert.Equal(t, "4.5", KeyString(4.5))
	assert.Equal(t, "abc", KeyString("  abc "))
	// "é" composed vs decomposed
	assert.Equal(t, KeyString("caf\u00e9"), KeyString("cafe\u0301"))
}

func TestPadKey(t *testing.T) {
	assert.Equal(t, "000012345", PadKey("12345", 9))
	assert.Equal(t, "123456789", PadKey("123456789", 9))
	assert.Equal(t, "", PadKey("", 9))
}

func origins(m FieldMapping) []string {
	out := make([]string, 0, len(m))
	for _, r := range m {
		out = append(out, r.Origin)
	}
	return out
}
