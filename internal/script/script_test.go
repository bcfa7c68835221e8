package script

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/page/sandbox"
)

const fixture = `<ul>
<li id="a" class="item">one</li>
<li id="b" class="item">skip</li>
<li id="c" class="item">three</li>
</ul>
<h1>Title</h1>`

func newBridge(t *testing.T) (*sandbox.Page, *jquery.Bridge) {
	t.Helper()
	page := sandbox.New(sandbox.DefaultConfig())
	require.NoError(t, page.Load(fixture))
	t.Cleanup(func() { _ = page.Close() })
	return page, jquery.NewBridge(page, jquery.Options{})
}

func TestParseFormatsAgree(t *testing.T) {
	want := &Script{
		Name:     "visible items",
		Selector: ".item",
		Mode:     ModeCollection,
		Steps: []Step{
			{Method: "filter", Func: "function (i, el) { return jQuery(el).text() !== skip; }"},
			{Method: "addClass", Args: []any{"seen"}},
		},
		Locals: map[string]any{"skip": "skip"},
	}

	for _, name := range []string{"items.yaml", "items.toml", "items.json"} {
		t.Run(name, func(t *testing.T) {
			got, err := ParseFile(filepath.Join("testdata", name))
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("script mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatTOML, FormatFromPath("q.TOML"))
	assert.Equal(t, FormatJSON, FormatFromPath("dir/q.json"))
	assert.Equal(t, FormatYAML, FormatFromPath("q.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("q"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		script Script
		want   error
		msg    string
	}{
		{"missing selector", Script{}, ErrInvalidScript, "selector is required"},
		{"unknown mode", Script{Selector: "a", Mode: "stream"}, ErrInvalidScript, "unknown mode"},
		{"unsupported method", Script{Selector: "a", Steps: []Step{{Method: "animate"}}}, jquery.ErrUnsupportedMethod, "animate"},
		{"accessor outside value mode", Script{Selector: "a", Steps: []Step{{Method: "text"}}}, jquery.ErrValueAccessor, "step 0"},
		{"accessor not last", Script{Selector: "a", Mode: ModeValue, Steps: []Step{{Method: "text"}, {Method: "html"}}}, jquery.ErrValueAccessor, "step 0"},
		{"value mode without accessor", Script{Selector: "a", Mode: ModeValue, Steps: []Step{{Method: "first"}}}, ErrInvalidScript, "last step"},
		{"value mode without steps", Script{Selector: "a", Mode: ModeValue}, ErrInvalidScript, "accessor step"},
		{"bad wait timeout", Script{Selector: "a", Wait: &Wait{Timeout: "soon"}}, ErrInvalidScript, "wait timeout"},
		{"bad polling", Script{Selector: "a", Wait: &Wait{Polling: "often"}}, ErrInvalidScript, "polling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.script.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	ok := Script{Selector: "a", Steps: []Step{{Method: "attr", Args: []any{"x", 1}}}}
	require.NoError(t, ok.Validate())
	assert.Equal(t, ModeCollection, ok.Mode)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte("selector: [unclosed"), FormatYAML)
	assert.ErrorIs(t, err, ErrInvalidScript)

	_, err = Parse([]byte(`{"selector": 1}`), FormatJSON)
	assert.ErrorIs(t, err, ErrInvalidScript)

	_, err = Parse([]byte(`selector = "a"`), Format("xml"))
	assert.ErrorIs(t, err, ErrInvalidScript)
}

func TestRunCollection(t *testing.T) {
	page, b := newBridge(t)
	s, err := ParseFile("testdata/items.yaml")
	require.NoError(t, err)

	res, err := Run(context.Background(), b, s, Options{})
	require.NoError(t, err)

	assert.Equal(t, "visible items", res.Name)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{
		`<li id="a" class="item seen">one</li>`,
		`<li id="c" class="item seen">three</li>`,
	}, res.Elements)
	assert.Nil(t, res.Value)
	assert.Zero(t, page.LiveHandles())
}

func TestRunValue(t *testing.T) {
	_, b := newBridge(t)
	s, err := ParseFile("testdata/title.yaml")
	require.NoError(t, err)

	res, err := Run(context.Background(), b, s, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Title", res.Value)
	assert.Equal(t, ModeValue, res.Mode)
}

func TestRunPlainWithWait(t *testing.T) {
	_, b := newBridge(t)
	s, err := ParseFile("testdata/texts.yaml")
	require.NoError(t, err)

	res, err := Run(context.Background(), b, s, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []any{
		map[string]any{"id": "a", "text": "one"},
		map[string]any{"id": "b", "text": "skip"},
	}, res.Value)
}

func TestRunWaitTimeout(t *testing.T) {
	_, b := newBridge(t)
	s := &Script{Selector: ".never", Wait: &Wait{Timeout: "20ms"}}

	_, err := Run(context.Background(), b, s, Options{})
	assert.ErrorIs(t, err, jquery.ErrWaitTimeout)

	s.Wait.OnTimeout = "ignore"
	res, err := Run(context.Background(), b, s, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}

func TestRunSanitize(t *testing.T) {
	_, b := newBridge(t)
	s := &Script{Selector: "h1"}

	res, err := Run(context.Background(), b, s, Options{Sanitize: strings.ToUpper})
	require.NoError(t, err)
	assert.Equal(t, []string{"<H1>TITLE</H1>"}, res.Elements)
}

func TestRunExecError(t *testing.T) {
	_, b := newBridge(t)
	s := &Script{Selector: "li", Steps: []Step{{Method: "filter", Func: "function () { return missing; }"}}}

	_, err := Run(context.Background(), b, s, Options{})
	var execErr *jquery.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "missing is not defined")
}

func TestEncode(t *testing.T) {
	res := &Result{Mode: ModeCollection, Chain: "JQuery selector based on: 'li'", Count: 1, Elements: []string{`<li id="a">x</li>`}}

	raw, err := Encode(res, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"mode\": \"collection\"")
	var fromJSON Result
	require.NoError(t, sonic.Unmarshal(raw, &fromJSON))
	assert.Equal(t, *res, fromJSON)

	raw, err = Encode(res, FormatYAML)
	require.NoError(t, err)
	var fromYAML Result
	require.NoError(t, yaml.Unmarshal(raw, &fromYAML))
	assert.Equal(t, *res, fromYAML)

	_, err = Encode(res, FormatTOML)
	assert.Error(t, err)
}
