// internal/scenario/state_test.go
package scenario

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_SetGetDelete(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("orderId", "A-100"))
	require.NoError(t, s.Set("count", 3))

	var order string
	found, err := s.Get("orderId", &order)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "A-100", order)

	var missing string
	found, err = s.Get("nope", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, []string{"count", "orderId"}, s.Keys())
	s.Delete("count")
	s.Delete("count")
	assert.Equal(t, []string{"orderId"}, s.Keys())
	assert.Equal(t, 1, s.Len())
}

func TestState_RejectsEmptyKey(t *testing.T) {
	assert.Error(t, New().Set("", 1))
}

func TestState_GetTypeMismatch(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("name", "x"))
	var n int
	found, err := s.Get("name", &n)
	assert.True(t, found)
	assert.Error(t, err)
}

func TestState_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "scenario-state.json")
	s := New()
	require.NoError(t, s.Set("user", map[string]string{"name": "taro"}))
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	var user map[string]string
	found, err := loaded.Get("user", &user)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "taro", user["name"])
}

func TestLoad_MissingAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Zero(t, s.Len())

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	s, err = Load(empty)
	require.NoError(t, err)
	assert.Zero(t, s.Len())

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	_, err = Load(corrupt)
	assert.Error(t, err)
}

func TestFresh_DiscardsPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	old := New()
	require.NoError(t, old.Set("leftover", true))
	require.NoError(t, old.Save(path))

	_, err := Fresh(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Keys())
}

func TestState_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Set(string(rune('a'+i)), i)
			_ = s.Keys()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}
