package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyListing(t *testing.T) {
	tgt, err := Classify("https://comick.app/comic/one-piece")
	require.NoError(t, err)
	require.Equal(t, KindListing, tgt.Kind)
}

func TestClassifyItem(t *testing.T) {
	tgt, err := Classify("https://comick.app/comic/one-piece/abc123-chapter-1-en")
	require.NoError(t, err)
	require.Equal(t, KindItem, tgt.Kind)
}

func TestClassifyRejectsMalformedShapes(t *testing.T) {
	for _, raw := range []string{
		"https://comick.app/comic",
		"https://comick.app/comic/one-piece/abc123-chapter-1-en/extra",
		"not-a-url",
	} {
		_, err := Classify(raw)
		require.ErrorIs(t, err, ErrMalformedTarget, "raw=%s", raw)
	}
}

func TestClassifyBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chapters.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://comick.app/comic/a/b\n"), 0o600))

	tgt, err := Classify(path)
	require.NoError(t, err)
	require.Equal(t, KindBatch, tgt.Kind)
	require.Equal(t, path, tgt.Raw)
}

func TestClassifyDirectoryIsNotBatch(t *testing.T) {
	// A directory has no lines to read; fall through to URL shape rules.
	_, err := Classify(t.TempDir())
	require.ErrorIs(t, err, ErrMalformedTarget)
}
