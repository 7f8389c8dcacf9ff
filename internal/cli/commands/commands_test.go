package commands_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/badger-opt/badger/internal/cli"
	"github.com/badger-opt/badger/internal/config"
	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/internal/template"
	"github.com/badger-opt/badger/pkg/vocs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI against an isolated config root and returns the
// combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.Reset()
	cmd := cli.NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func sampleTemplate() *template.Template {
	return &template.Template{
		Name:        "sphere-quick",
		Environment: routine.EnvironmentSpec{Name: "sphere_2d"},
		Generator:   routine.GeneratorSpec{Name: "neldermead"},
		VOCS: &vocs.VOCS{
			Variables:  map[string]vocs.Bounds{"x0": {-1, 1}, "x1": {-1, 1}},
			Objectives: map[string]vocs.ObjectiveRule{"f1": vocs.Minimize},
		},
	}
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Badger v")
}

func TestInfoBlock(t *testing.T) {
	isolate(t)
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "name: Badger the optimizer")
	assert.Contains(t, out, "archive root:")
}

func TestRoutine_ListEmpty(t *testing.T) {
	isolate(t)
	out, err := execute(t, "routine")
	require.NoError(t, err)
	assert.Contains(t, out, "No routine has been saved yet")
}

func TestEnvCommands(t *testing.T) {
	isolate(t)
	out, err := execute(t, "env")
	require.NoError(t, err)
	assert.Contains(t, out, "sphere_2d")

	out, err = execute(t, "env", "sphere_2d")
	require.NoError(t, err)
	assert.Contains(t, out, "x0")
	assert.Contains(t, out, "f1")

	_, err = execute(t, "env", "ghost")
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	isolate(t)
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "archive_root")
	assert.Contains(t, out, "logging_level")

	out, err = execute(t, "config", "logging_level")
	require.NoError(t, err)
	assert.Contains(t, out, "WARNING")

	_, err = execute(t, "config", "bogus_key")
	assert.Error(t, err)
}

func TestConfigCommand_SetValue(t *testing.T) {
	isolate(t)
	_, err := execute(t, "config", "logging_level", "DEBUG")
	require.NoError(t, err)

	out, err := execute(t, "config", "logging_level")
	require.NoError(t, err)
	assert.Contains(t, out, "DEBUG")
}

func TestTemplateCommands(t *testing.T) {
	isolate(t)
	templateRoot := t.TempDir()
	t.Setenv("BADGER_TEMPLATE_ROOT", templateRoot)

	store, err := template.NewStore(templateRoot)
	require.NoError(t, err)
	require.NoError(t, store.Save(sampleTemplate()))

	out, err := execute(t, "template", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "sphere-quick")

	out, err = execute(t, "template", "show", "sphere-quick")
	require.NoError(t, err)
	assert.Contains(t, out, "sphere_2d")

	out, err = execute(t, "template", "apply", "sphere-quick")
	require.NoError(t, err)
	assert.Contains(t, out, "neldermead")
}

func TestRunCommand_FromFile(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	routineFile := filepath.Join(dir, "sphere.yaml")
	require.NoError(t, os.WriteFile(routineFile, []byte(`
name: sphere-cli
environment:
  name: sphere_2d
generator:
  name: random
  params:
    seed: 7
vocs:
  variables:
    x0: [-1, 1]
    x1: [-1, 1]
  objectives:
    f1: MINIMIZE
`), 0o644))

	out, err := execute(t, "run", routineFile, "--max-eval", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Running routine sphere-cli")
	assert.Contains(t, out, "Run ended after 3 evaluation(s)")
}

func TestRunCommand_RequiresRoutine(t *testing.T) {
	isolate(t)
	_, err := execute(t, "run")
	assert.Error(t, err)
}
