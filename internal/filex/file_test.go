package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSubDir_CreatesUnderBase(t *testing.T) {
	base := t.TempDir()

	got, err := EnsureSubDir(base, "scratch")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "scratch"), got)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}
}

func TestEnsureSubDir_DefaultsToWorkingDir(t *testing.T) {
	tmp := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { _ = os.Chdir(old) })

	got, err := EnsureSubDir("", "data")
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(filepath.Join(tmp, "data"))
	require.NoError(t, err)
	gotReal, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	require.Equal(t, want, gotReal)
}

func TestEnsureDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	first, err := EnsureDir(dir)
	require.NoError(t, err)
	second, err := EnsureDir(dir)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnsureDir_FailsIfFileExists(t *testing.T) {
	p := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o660))
	_, err := EnsureDir(p)
	require.Error(t, err)
}

func TestRegularFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cast.rsk")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o660))

	require.NoError(t, RegularFile(p))
	require.Error(t, RegularFile(dir))
	require.Error(t, RegularFile(filepath.Join(dir, "missing")))
}
