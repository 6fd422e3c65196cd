package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ResolvesDefinition(t *testing.T) {
	s := loadTestScenario(t, "insert_only.yaml")

	assert.Equal(t, "insert_only_skips_existing", s.Name)
	assert.Equal(t, filepath.Join("testdata", "registries", "test.yaml"), s.Definition)
	require.Len(t, s.Setup, 1)
	assert.Equal(t, "organizations", s.Setup[0].Collection)
	require.Len(t, s.Flow, 3)
	assert.Equal(t, OpClassify, s.Flow[0].Op)
	assert.Equal(t, "insert-only", s.Flow[2].Strategy)
}

func TestLoadScenario_Options(t *testing.T) {
	s := loadTestScenario(t, "orphan_creation.yaml")
	assert.True(t, s.Options.CreateOrphans)
	require.Len(t, s.Snapshot, 2)
	assert.Equal(t, []string{"entityId", "registryID", "originalData"}, s.Snapshot[0].Fields)
}

func TestGenerate_Records(t *testing.T) {
	g := &Generate{Count: 3, Start: 8, Fields: map[string]string{"id": "{n}", "name": "Entity {n}"}}
	recs := g.records()
	require.Len(t, recs, 3)
	assert.Equal(t, "8", recs[0]["id"])
	assert.Equal(t, "Entity 10", recs[2]["name"])
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	def, err := os.ReadFile(filepath.Join("testdata", "registries", "test.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "def.yaml"), def, 0o644))

	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Invalid(t *testing.T) {
	const base = "name: x\ndescription: d\ndefinition: def.yaml\n"
	const assertion = "assertions:\n  - {type: count, collection: organizations, count: 0}\n"
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown key", base + "flows: []\n", "field flows not found"},
		{"missing name", "description: d\ndefinition: def.yaml\n", "name is required"},
		{"missing definition file", "name: x\ndescription: d\ndefinition: nope.yaml\nflow:\n  - {op: match_all}\n" + assertion, "definition file not found"},
		{"empty flow", base + assertion, "flow list is required"},
		{"unknown op", base + "flow:\n  - {op: explode}\n" + assertion, `unknown op "explode"`},
		{"bad strategy", base + "flow:\n  - {op: sync, level: entities, strategy: merge}\n" + assertion, "merge"},
		{"bad level", base + "flow:\n  - {op: classify, level: trustees}\n" + assertion, "trustees"},
		{"match_one without filing", base + "flow:\n  - {op: match_one}\n" + assertion, "filing is required"},
		{"count without count", base + "flow:\n  - {op: match_all}\nassertions:\n  - {type: count, collection: filings}\n", "non-negative count"},
		{"unknown assertion", base + "flow:\n  - {op: match_all}\nassertions:\n  - {type: vibes, collection: filings}\n", `unknown assertion type "vibes"`},
		{"bad setup collection", base + "setup:\n  - {collection: people, documents: [{a: 1}]}\nflow:\n  - {op: match_all}\n" + assertion, `unknown collection "people"`},
		{"empty generate", base + "setup:\n  - collection: filings\n    generate: {count: 0, fields: {a: b}}\nflow:\n  - {op: match_all}\n" + assertion, "count must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "scenarios", "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
