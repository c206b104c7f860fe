package pack

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripnara/readiness/pkg/condition"
)

func newEvaluator(t *testing.T) *condition.Evaluator {
	t.Helper()
	ev, err := condition.NewEvaluator()
	require.NoError(t, err)
	return ev
}

func TestLoadBuiltin(t *testing.T) {
	packs, err := LoadBuiltin(newEvaluator(t))
	require.NoError(t, err)

	var types []string
	for _, p := range packs {
		types = append(types, p.Type)
	}
	assert.Equal(t, []string{
		"high_altitude", "mountain_pass", "remote_medical", "sea_crossing", "seasonal_road", "sparse_supply",
	}, types)

	reg, err := NewRegistry(packs...)
	require.NoError(t, err)
	seasonal, ok := reg.Get("seasonal_road")
	require.True(t, ok)
	assert.Equal(t, LevelBlocker, seasonal.Rules[0].Level)
	assert.Equal(t, []string{"alternate_route", "change_hotel"}, seasonal.Rules[0].RepairHints)
}

func TestParse_NormalizesLegacyLevels(t *testing.T) {
	packs, err := LoadBuiltin(newEvaluator(t))
	require.NoError(t, err)
	reg, err := NewRegistry(packs...)
	require.NoError(t, err)

	sparse, ok := reg.Get("sparse_supply")
	require.True(t, ok)
	levels := map[string]Level{}
	for _, r := range sparse.Rules {
		levels[r.ID] = r.Level
	}
	assert.Equal(t, LevelMust, levels["sparse_supply.no_fuel"])
	assert.Equal(t, LevelShould, levels["sparse_supply.no_supermarket"])
}

func TestParse_RejectsMalformed(t *testing.T) {
	ev := newEvaluator(t)
	cases := map[string]string{
		"unsupported schema": `
schema_version: "2.1.0"
type: x
display_name: X
rules:
  - {id: a, level: must, category: safety, message: m, trigger: {conditions: [{field: season, op: eq, value: winter}]}}
`,
		"bad version": `
schema_version: "one"
type: x
display_name: X
rules:
  - {id: a, level: must, category: safety, message: m, trigger: {conditions: [{field: season, op: eq, value: winter}]}}
`,
		"unknown level": `
schema_version: "1.0.0"
type: x
display_name: X
rules:
  - {id: a, level: critical, category: safety, message: m, trigger: {conditions: [{field: season, op: eq, value: winter}]}}
`,
		"no rules": `
schema_version: "1.0.0"
type: x
display_name: X
rules: []
`,
		"bad condition": `
schema_version: "1.0.0"
type: x
display_name: X
rules:
  - {id: a, level: must, category: safety, message: m, trigger: {conditions: [{field: routeLength, op: gt, value: far}]}}
`,
		"empty trigger": `
schema_version: "1.0.0"
type: x
display_name: X
rules:
  - {id: a, level: must, category: safety, message: m, trigger: {}}
`,
		"duplicate rule": `
schema_version: "1.0.0"
type: x
display_name: X
rules:
  - {id: a, level: must, category: safety, message: m, trigger: {conditions: [{field: season, op: exists}]}}
  - {id: a, level: must, category: safety, message: m, trigger: {conditions: [{field: season, op: exists}]}}
`,
		"unknown field": `
schema_version: "1.0.0"
type: x
display_name: X
priority: 3
rules:
  - {id: a, level: must, category: safety, message: m, trigger: {conditions: [{field: season, op: exists}]}}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), name+".yaml", ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPack))
		})
	}
}

func TestLoadRegistry_DirectoryOverridesAndExtends(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ferry.yaml"), []byte(`
schema_version: "1.2.0"
type: sea_crossing
display_name: Ferry (local)
rules:
  - id: sea_crossing.local
    level: optional
    category: transport
    message: Local ferry rule.
    trigger:
      conditions:
        - {field: hasSeaCrossing, op: exists}
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wildlife.yml"), []byte(`
schema_version: "1.0.0"
type: wildlife
display_name: Wildlife
rules:
  - id: wildlife.bears
    level: should
    category: safety
    message: Bear country.
    trigger:
      conditions:
        - {field: activities, op: contains, value: camping}
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	reg, err := LoadRegistry(dir, newEvaluator(t))
	require.NoError(t, err)
	assert.Equal(t, 7, reg.Len())

	ferry, ok := reg.Get("sea_crossing")
	require.True(t, ok)
	assert.Equal(t, "Ferry (local)", ferry.DisplayName)

	list := reg.List()
	assert.Equal(t, "wildlife", list[len(list)-1].Type)
	assert.Equal(t, 1, list[len(list)-1].RuleCount)
}

func TestLoadRegistry_FailsOnMalformedDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("type: [unclosed"), 0o600))

	_, err := LoadRegistry(dir, newEvaluator(t))
	require.Error(t, err)

	_, err = LoadRegistry(filepath.Join(dir, "missing"), newEvaluator(t))
	require.Error(t, err)
}

func TestNewRegistry_RejectsDuplicateTypes(t *testing.T) {
	_, err := NewRegistry(CapabilityPack{Type: "a"}, CapabilityPack{Type: "a"})
	assert.ErrorIs(t, err, ErrInvalidPack)
}
