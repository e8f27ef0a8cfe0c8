// internal/runner/catalog_test.go
package runner

import (
	"os"
	"path/filepath"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpecs(t *testing.T, dir string, ids ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, id := range ids {
		require.NoError(t, os.WriteFile(filepath.Join(dir, id+SpecSuffix), []byte("// "+id), 0o644))
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "2", 1},
		{"2", "2", 0},
		{"1-2", "1-10", -1},
		{"case9", "case10", -1},
		{"a", "b", -1},
		{"B", "a", 1},
		{"1", "1a", -1},
		{"01", "1", -1},
		{"9", "a", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b))
		})
	}
}

func TestSortIDs(t *testing.T) {
	ids := []string{"10", "2", "1", "login", "1-10", "1-2"}
	SortIDs(ids)
	assert.Equal(t, []string{"1", "1-2", "1-10", "2", "10", "login"}, ids)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	writeSpecs(t, dir, "10", "2", "1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario-state.ts"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.spec.ts"), 0o755))

	c, err := LoadCatalog(dir)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"1", "2", "10"}, c.IDs); diff != "" {
		t.Errorf("catalog ids mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, c.Has("10"))
	assert.False(t, c.Has("3"))
	assert.Equal(t, filepath.Join(dir, "2.spec.ts"), c.File("2"))
	assert.Equal(t, []string{filepath.Join(dir, "10.spec.ts")}, c.Files([]string{"10"}))
}

func TestLoadCatalog_MissingDirectoryIsEmpty(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "tests"))
	require.NoError(t, err)
	assert.Empty(t, c.IDs)
}

// FuzzCompareIDs checks that the ordering is a consistent total order.
func FuzzCompareIDs(f *testing.F) {
	f.Add([]byte("2\x0010\x001a"))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		a, err := c.GetString()
		if err != nil {
			return
		}
		b, err := c.GetString()
		if err != nil {
			return
		}
		ab, ba := CompareIDs(a, b), CompareIDs(b, a)
		if ab != -ba {
			t.Fatalf("CompareIDs not antisymmetric for %q, %q: %d vs %d", a, b, ab, ba)
		}
		if (ab == 0) != (a == b) {
			t.Fatalf("CompareIDs(%q, %q) = 0 for distinct ids", a, b)
		}
		if CompareIDs(a, a) != 0 {
			t.Fatalf("CompareIDs(%q, %q) != 0", a, a)
		}
	})
}
