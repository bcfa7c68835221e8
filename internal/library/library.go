// Package library supplies the jQuery source injected into pages.
//
// Two builds are embedded. Bundled is the jQuery 3.6.1 release, injected
// into browser pages. SandboxBuild is a core subset on top of
// querySelectorAll for the in-process page, whose DOM cannot host the
// full release. A file path or URL can replace either, e.g. to inject
// jquery-3.4.1.js. Sources are loaded at most once per Loader and patched
// per injected global name.
package library

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
)

//go:embed assets/jquery-3.6.1.js
var bundled string

//go:embed assets/jquery-sandbox.js
var sandboxBuild string

// SelfBinding is the statement a jQuery build ends with to publish itself.
const SelfBinding = "window.jQuery = window.$ = jQuery"

const sourceURL = "//# sourceURL=jquery.js\n"

// Patch rebinds the library to window.<name> instead of jQuery and $ and
// tags the source for page debuggers. Only the first SelfBinding is
// replaced.
func Patch(src, name string) string {
	return sourceURL + strings.Replace(src, SelfBinding, "window."+name+" = jQuery", 1)
}

// Fetcher retrieves a remote text resource.
type Fetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Loader loads a library source once and caches it. A failed load is not
// cached.
type Loader struct {
	origin string
	load   func(ctx context.Context) (string, error)

	mu     sync.Mutex
	source string
	loaded bool
}

// Bundled returns a loader for the embedded jQuery release.
func Bundled() *Loader {
	return &Loader{
		origin: "bundled:jquery-3.6.1",
		load: func(context.Context) (string, error) {
			return bundled, nil
		},
	}
}

// SandboxBuild returns a loader for the embedded subset. It covers the
// chainable method table but not Sizzle selector extensions (:first,
// :visible), effects or ajax.
func SandboxBuild() *Loader {
	return &Loader{
		origin: "bundled:sandbox",
		load: func(context.Context) (string, error) {
			return sandboxBuild, nil
		},
	}
}

// FromFile returns a loader reading path.
func FromFile(path string) *Loader {
	return &Loader{
		origin: "file:" + path,
		load: func(context.Context) (string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read library: %w", err)
			}
			return string(data), nil
		},
	}
}

// FromURL returns a loader downloading url with f.
func FromURL(f Fetcher, url string) *Loader {
	return &Loader{
		origin: url,
		load: func(ctx context.Context) (string, error) {
			text, err := f.Text(ctx, url)
			if err != nil {
				return "", fmt.Errorf("download library: %w", err)
			}
			return text, nil
		},
	}
}

// New picks a loader: path if set, then url, then fallback. A nil
// fallback means the shared release build.
func New(path, url string, f Fetcher, fallback *Loader) *Loader {
	switch {
	case path != "":
		return FromFile(path)
	case url != "" && f != nil:
		return FromURL(f, url)
	case fallback != nil:
		return fallback
	default:
		return Default()
	}
}

var (
	defaultLoader *Loader
	sandboxLoader *Loader
	once          sync.Once
	sandboxOnce   sync.Once
)

// Default returns the shared loader for the bundled release.
func Default() *Loader {
	once.Do(func() {
		defaultLoader = Bundled()
	})
	return defaultLoader
}

// Sandbox returns the shared loader for the sandbox build.
func Sandbox() *Loader {
	sandboxOnce.Do(func() {
		sandboxLoader = SandboxBuild()
	})
	return sandboxLoader
}

// Origin describes where the source comes from.
func (l *Loader) Origin() string { return l.origin }

// Source returns the unpatched library source.
func (l *Loader) Source(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return l.source, nil
	}
	src, err := l.load(ctx)
	if err != nil {
		return "", err
	}
	if !strings.Contains(src, SelfBinding) {
		return "", fmt.Errorf("library %s: missing %q", l.origin, SelfBinding)
	}
	l.source, l.loaded = src, true
	return src, nil
}
