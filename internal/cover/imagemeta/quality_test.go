package imagemeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPreferred(t *testing.T) {
	cases := []struct {
		name string
		dims Dimensions
		want bool
	}{
		{"standard box art", Dimensions{600, 900}, true},
		{"slightly off ratio", Dimensions{601, 900}, true},
		{"minimum size", Dimensions{300, 450}, true},
		{"too small", Dimensions{200, 300}, false},
		{"square", Dimensions{900, 900}, false},
		{"landscape", Dimensions{900, 600}, false},
		{"too tall", Dimensions{300, 600}, false},
		{"barely portrait", Dimensions{600, 601}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsPreferred(tc.dims))
		})
	}
}

func TestClassifier_HiResTokenFastPath(t *testing.T) {
	c := NewClassifier(8)
	c.sniff = func(string) (Dimensions, bool) {
		t.Fatal("sniff should not run for a hi-res filename")
		return Dimensions{}, false
	}

	// The file does not even exist; the name alone decides.
	assert.True(t, c.IsPreferredCover("/games/foo/foo_library_600x900.jpg"))
}

func TestClassifier_SniffsAndMemoizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.png")
	require.NoError(t, os.WriteFile(path, pngHeader(600, 900), 0o644))

	c := NewClassifier(8)
	calls := 0
	realSniff := c.sniff
	c.sniff = func(p string) (Dimensions, bool) {
		calls++
		return realSniff(p)
	}

	assert.True(t, c.IsPreferredCover(path))
	assert.True(t, c.IsPreferredCover(path))
	assert.Equal(t, 1, calls, "second lookup should be memoized")
}

func TestClassifier_CaseInsensitiveMemoKey(t *testing.T) {
	c := NewClassifier(8)
	calls := 0
	c.sniff = func(string) (Dimensions, bool) {
		calls++
		return Dimensions{600, 900}, true
	}

	assert.True(t, c.IsPreferredCover(`C:\Games\Foo\Cover.png`))
	assert.True(t, c.IsPreferredCover(`c:\games\foo\cover.png`))
	assert.Equal(t, 1, calls)
}

func TestClassifier_UnknownIsNotPreferred(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))

	c := NewClassifier(8)
	assert.False(t, c.IsPreferredCover(path))
	assert.False(t, c.IsPreferredCover(""))
}

func TestClassifier_Forget(t *testing.T) {
	c := NewClassifier(8)
	calls := 0
	c.sniff = func(string) (Dimensions, bool) {
		calls++
		return Dimensions{600, 900}, true
	}

	c.IsPreferredCover("/games/foo/cover.png")
	c.Forget("/games/foo/cover.png")
	c.IsPreferredCover("/games/foo/cover.png")
	assert.Equal(t, 2, calls)
}
