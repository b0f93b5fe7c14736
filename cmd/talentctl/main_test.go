package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-source/internal/seed"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate"},
		{"reindex"},
		{"serve"},
		{"seed", "plans"},
		{"seed", "skills"},
		{"admin", "create"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestValidateSkillSource(t *testing.T) {
	assert.NoError(t, validateSkillSource("skills.yaml", ""))
	assert.NoError(t, validateSkillSource("", "https://example.com/skills"))
	assert.ErrorIs(t, validateSkillSource("", " "), errSeedSource)
	assert.ErrorIs(t, validateSkillSource("a.yaml", "https://example.com"), errSeedSource)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skills.yaml")
	require.NoError(t, os.WriteFile(path, []byte("skills:\n  - name_en: Welding\n    name_ar: لحام\n    class: B\n"), 0o600))

	list, err := readFile(path, seed.LoadSkills)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Welding", list[0].NameEn)

	_, err = readFile(filepath.Join(dir, "missing.yaml"), seed.LoadSkills)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadFileWrapsLoaderErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans: [\n"), 0o600))

	_, err := readFile(path, seed.LoadPlans)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), path))
}
