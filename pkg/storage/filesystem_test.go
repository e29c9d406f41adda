package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicReplacesContent(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.WriteAtomic("a/b/quiz.json", []byte(`{"v":1}`)))
	require.NoError(t, store.WriteAtomic("a/b/quiz.json", []byte(`{"v":2}`)))

	data, err := store.ReadFile("a/b/quiz.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))

	entries, err := os.ReadDir(filepath.Join(store.Base(), "a", "b"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestResolveRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, rel := range []string{"../escape.json", "a/../../escape.json", "/etc/passwd", ""} {
		_, err := store.Resolve(rel)
		assert.True(t, errors.Is(err, ErrOutsideBase), rel)
	}

	_, err = store.Resolve("a/../b.json")
	assert.NoError(t, err)
}

func TestExistsAndDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ok, err := store.Exists("x.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Save("x.json", []byte("{}"))
	require.NoError(t, err)
	ok, err = store.Exists("x.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete("x.json"))
	require.NoError(t, store.Delete("x.json"))
	ok, _ = store.Exists("x.json")
	assert.False(t, ok)
}
