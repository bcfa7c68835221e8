package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Text(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func TestPatch(t *testing.T) {
	src := "(function(){ var jQuery = 1; window.jQuery = window.$ = jQuery; })();"

	got := Patch(src, "pjq_1")

	assert.Equal(t, "//# sourceURL=jquery.js\n(function(){ var jQuery = 1; window.pjq_1 = jQuery; })();", got)
}

func TestPatchReplacesFirstBindingOnly(t *testing.T) {
	src := "window.jQuery = window.$ = jQuery;\nwindow.jQuery = window.$ = jQuery;"

	got := Patch(src, "x")

	assert.Equal(t, 1, strings.Count(got, "window.x = jQuery"))
	assert.Equal(t, 1, strings.Count(got, SelfBinding))
}

func TestBundledSource(t *testing.T) {
	src, err := Bundled().Source(context.Background())
	require.NoError(t, err)

	assert.Contains(t, src, "jQuery JavaScript Library v3.6.1")
	assert.Contains(t, src, "Sizzle")
	assert.Contains(t, src, SelfBinding)
	assert.NotContains(t, Patch(src, "pjq_a"), SelfBinding)
	assert.Same(t, Default(), Default())
	assert.Equal(t, "bundled:jquery-3.6.1", Default().Origin())
}

func TestSandboxBuildSource(t *testing.T) {
	src, err := SandboxBuild().Source(context.Background())
	require.NoError(t, err)

	assert.Contains(t, src, SelfBinding)
	assert.NotContains(t, src, "Sizzle")
	assert.Same(t, Sandbox(), Sandbox())
	assert.NotSame(t, Default(), Sandbox())
	assert.Equal(t, "bundled:sandbox", Sandbox().Origin())
}

func TestNewFallback(t *testing.T) {
	assert.Same(t, Default(), New("", "", nil, nil))
	assert.Same(t, Sandbox(), New("", "", nil, Sandbox()))
	// a url without a fetcher cannot be loaded
	assert.Same(t, Sandbox(), New("", "https://cdn.example/jquery.js", nil, Sandbox()))
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jquery.js")
	require.NoError(t, os.WriteFile(path, []byte("var jQuery = {};\n"+SelfBinding+";"), 0o644))

	l := New(path, "https://ignored.example/jquery.js", nil, nil)
	src, err := l.Source(context.Background())
	require.NoError(t, err)
	assert.Contains(t, src, "var jQuery = {};")

	// cached: removing the file does not matter any more
	require.NoError(t, os.Remove(path))
	_, err = l.Source(context.Background())
	assert.NoError(t, err)
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope.js")).Source(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromURLLoadsOnce(t *testing.T) {
	f := new(mockFetcher)
	f.On("Text", mock.Anything, "https://cdn.example/jquery.js").Return(SelfBinding+";", nil).Once()

	l := New("", "https://cdn.example/jquery.js", f, Sandbox())
	for i := 0; i < 3; i++ {
		src, err := l.Source(context.Background())
		require.NoError(t, err)
		assert.Equal(t, SelfBinding+";", src)
	}
	f.AssertExpectations(t)
}

func TestFromURLFailureNotCached(t *testing.T) {
	f := new(mockFetcher)
	f.On("Text", mock.Anything, "u").Return("", errors.New("boom")).Once()
	f.On("Text", mock.Anything, "u").Return(SelfBinding, nil).Once()

	l := FromURL(f, "u")
	_, err := l.Source(context.Background())
	assert.ErrorContains(t, err, "boom")

	src, err := l.Source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SelfBinding, src)
	f.AssertExpectations(t)
}

func TestSourceRequiresSelfBinding(t *testing.T) {
	f := new(mockFetcher)
	f.On("Text", mock.Anything, "u").Return("console.log(1)", nil)

	_, err := FromURL(f, "u").Source(context.Background())
	assert.ErrorContains(t, err, "missing")
}
