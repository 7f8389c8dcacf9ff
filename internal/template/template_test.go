package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/vocs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleTemplate() *Template {
	return &Template{
		Name:        "sphere-quick",
		Description: "quick sphere scan",
		Environment: routine.EnvironmentSpec{Name: "sphere_2d"},
		Generator:   routine.GeneratorSpec{Name: "neldermead", Params: map[string]any{"initial_step": 0.2}},
		VOCS: &vocs.VOCS{
			Variables:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
			Objectives: map[string]vocs.ObjectiveRule{"f1": vocs.Minimize},
			Constraints: map[string]vocs.Constraint{
				"f2": {Op: vocs.LessThan, Threshold: 2},
			},
		},
		VRangeLimitOptions: map[string]routine.LimitOption{
			"x0": {Kind: routine.LimitFullRange, RatioFull: 0.5},
		},
		InitialPointActions: []routine.InitialPointAction{
			{Type: routine.ActionAddCurrent},
		},
		CriticalConstraintNames: []string{"f2"},
	}
}

func TestStore_SaveLoadListDelete(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	tpl := sampleTemplate()
	require.NoError(t, s.Save(tpl))

	got, err := s.Load("sphere-quick")
	require.NoError(t, err)
	assert.Equal(t, tpl.Environment, got.Environment)
	assert.Equal(t, tpl.Generator.Name, got.Generator.Name)
	assert.Equal(t, tpl.VOCS.Constraints, got.VOCS.Constraints)
	assert.Equal(t, tpl.VRangeLimitOptions, got.VRangeLimitOptions)
	assert.Equal(t, tpl.CriticalConstraintNames, got.CriticalConstraintNames)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"sphere-quick"}, names)

	require.NoError(t, s.Delete("sphere-quick"))
	names, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = s.Load("sphere-quick")
	assert.Error(t, err)
}

func TestSave_Invalid(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	tpl := sampleTemplate()
	tpl.Environment.Name = ""
	assert.Error(t, s.Save(tpl))

	tpl = sampleTemplate()
	tpl.Name = ""
	assert.Error(t, s.Save(tpl))
}

func TestApply_FillsAbsentFieldsOnly(t *testing.T) {
	tpl := sampleTemplate()

	r := &routine.Routine{
		Name:      "custom",
		Generator: routine.GeneratorSpec{Name: "random"},
	}
	Apply(tpl, r)

	assert.Equal(t, "sphere_2d", r.Environment.Name)
	// User's generator choice wins over the template.
	assert.Equal(t, "random", r.Generator.Name)
	assert.Equal(t, tpl.VOCS, r.VOCS)
	assert.Equal(t, tpl.VRangeLimitOptions, r.VRangeLimitOptions)
	assert.Equal(t, []string{"f2"}, r.CriticalConstraintNames)
}

func TestMergeDefaults_NewConfig(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "template.yaml")
	configPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(templatePath, []byte("a: 1\nb: two\n"), 0o644))
	require.NoError(t, MergeDefaults(templatePath, configPath))

	var got map[string]any
	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(raw, &got))
	assert.Equal(t, 1, got["a"])
	assert.Equal(t, "two", got["b"])
}

func TestMergeDefaults_KeepsUserValues(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "template.yaml")
	configPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(templatePath, []byte("a: 1\nb: two\nc: 3\n"), 0o644))
	require.NoError(t, os.WriteFile(configPath, []byte("b: mine\n"), 0o644))
	require.NoError(t, MergeDefaults(templatePath, configPath))

	var got map[string]any
	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(raw, &got))
	assert.Equal(t, "mine", got["b"], "existing keys are never clobbered")
	assert.Equal(t, 1, got["a"])
	assert.Equal(t, 3, got["c"])
}
