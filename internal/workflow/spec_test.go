package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writePipeline(t, `
name: release
concurrency: 3
tasks:
  - name: fetch
    steps: 4
    duration: 200ms
  - name: build
    steps: 2
    depends_on: [fetch]
  - name: package
    depends_on:
      - build
`)

	spec, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "release", spec.Name)
	assert.Equal(t, 3, spec.Concurrency)
	require.Len(t, spec.Tasks, 3)
	assert.Equal(t, "fetch", spec.Tasks[0].Name)
	assert.Equal(t, 4, spec.Tasks[0].Steps)
	assert.Equal(t, Duration(200*time.Millisecond), spec.Tasks[0].Duration)
	assert.Equal(t, []string{"fetch"}, spec.Tasks[1].DependsOn)
	assert.Equal(t, []string{"build"}, spec.Tasks[2].DependsOn)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read pipeline file")
}

func TestLoad_Malformed(t *testing.T) {
	path := writePipeline(t, "tasks: [not, a, mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse pipeline file")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writePipeline(t, `
name: p
tasks:
  - name: a
    duration: fast
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid duration "fast"`)
}

func TestValidate(t *testing.T) {
	valid := func() *Spec {
		return &Spec{
			Name: "p",
			Tasks: []TaskSpec{
				{Name: "a"},
				{Name: "b", DependsOn: []string{"a"}},
			},
		}
	}

	t.Run("accepts a well-formed spec", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects empty task list", func(t *testing.T) {
		s := &Spec{Name: "empty"}
		assert.ErrorContains(t, s.Validate(), "declares no tasks")
	})

	t.Run("rejects negative concurrency", func(t *testing.T) {
		s := valid()
		s.Concurrency = -1
		assert.ErrorContains(t, s.Validate(), "negative concurrency")
	})

	t.Run("rejects unnamed task", func(t *testing.T) {
		s := valid()
		s.Tasks[0].Name = ""
		assert.ErrorContains(t, s.Validate(), "no name")
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		s := valid()
		s.Tasks[1].Name = "a"
		assert.ErrorContains(t, s.Validate(), "duplicate task name")
	})

	t.Run("rejects undeclared dependency", func(t *testing.T) {
		s := valid()
		s.Tasks[1].DependsOn = []string{"ghost"}
		assert.ErrorContains(t, s.Validate(), `undeclared task "ghost"`)
	})
}
