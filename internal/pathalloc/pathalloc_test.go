package pathalloc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeStripsPathSeparators(t *testing.T) {
	assert.Equal(t, "passwd", Sanitize("../../etc/passwd"))
}

func TestSanitizeReplacesReservedCharacters(t *testing.T) {
	assert.Equal(t, "a_b_c_d_e_f_g", Sanitize(`a:b*c?d"e<f>g`))
}

func TestSanitizeEmptyFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "download.bin", Sanitize(""))
}

func TestUniqueReturnsPathAsIsWhenFree(t *testing.T) {
	dir := t.TempDir()
	p, err := Unique(filepath.Join(dir, "file.zip"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "file.zip"), p)
}

func TestUniqueNumbersCollidingCandidates(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.zip")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file (1).zip"), []byte("x"), 0o644))

	p, err := Unique(target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "file (2).zip"), p)
}

func TestResolveSanitizesThenAllocates(t *testing.T) {
	dir := t.TempDir()
	p, err := Resolve(dir, "../evil/report?.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_.pdf"), p)
}
