package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataPath(t *testing.T) {
	pr, err := NewPathResolver()
	require.NoError(t, err)

	t.Run("absolute path is unchanged", func(t *testing.T) {
		abs := filepath.Join(t.TempDir(), "items.db")
		assert.Equal(t, abs, pr.GetDataPath(abs))
	})

	t.Run("empty stays empty", func(t *testing.T) {
		assert.Equal(t, "", pr.GetDataPath(""))
	})

	t.Run("existing file in working directory wins", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.tsv"), nil, 0o644))

		got := pr.GetDataPath("seed.tsv")
		want, err := filepath.EvalSymlinks(filepath.Join(dir, "seed.tsv"))
		require.NoError(t, err)
		gotResolved, err := filepath.EvalSymlinks(got)
		require.NoError(t, err)
		assert.Equal(t, want, gotResolved)
	})

	t.Run("missing file goes to the data dir", func(t *testing.T) {
		t.Chdir(t.TempDir())
		assert.Equal(t, filepath.Join(pr.DataDir(), "nope-suggestserve.db"), pr.GetDataPath("nope-suggestserve.db"))
	})
}

func TestConfigDirFor(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("APPDATA", "")
	dir := ConfigDirFor("/home/someone")
	assert.Equal(t, AppDirName, filepath.Base(dir))
	assert.Contains(t, dir, "someone")
}
