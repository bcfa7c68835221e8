package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/juiceqa/puppeteer-jquery/internal/fetch"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/config"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/monitoring"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/resilience"
	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/page/sandbox"
	"github.com/juiceqa/puppeteer-jquery/internal/script"
)

const fixture = `<html><head><title>Items</title></head><body>
<ul id="list">
  <li id="a" class="item">one</li>
  <li id="b" class="item">skip</li>
  <li id="c" class="item">three</li>
</ul>
</body></html>`

type fakeFetcher struct{ mock.Mock }

func (f *fakeFetcher) Get(ctx context.Context, url string) (*fetch.Document, error) {
	args := f.Called(url)
	doc, _ := args.Get(0).(*fetch.Document)
	return doc, args.Error(1)
}

type env struct {
	router  *gin.Engine
	pool    *sandbox.Pool
	metrics *monitoring.Metrics
	fetcher *fakeFetcher
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{
		pool:    sandbox.NewPool(sandbox.Config{Timeout: 2 * time.Second, EnableConsole: true}, 2),
		metrics: monitoring.NewMetrics(),
		fetcher: &fakeFetcher{},
	}
	t.Cleanup(func() { _ = e.pool.Close() })

	h := NewHandlers(Deps{
		Pool:         e.pool,
		Fetcher:      e.fetcher,
		Metrics:      e.metrics,
		Wait:         config.WaitConfig{Timeout: 200 * time.Millisecond, Interval: 10 * time.Millisecond},
		BreakerState: func() string { return "closed" },
	})
	e.router = gin.New()
	h.Register(e.router)
	return e
}

func (e *env) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := sonic.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) QueryResponse {
	t.Helper()
	var resp QueryResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestRoot(t *testing.T) {
	e := setup(t)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"puppeteer-jquery"`)
}

func TestHealth(t *testing.T) {
	e := setup(t)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string            `json:"status"`
		Pool   sandbox.PoolStats `json:"pool"`
		Fetch  map[string]any    `json:"fetch"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 2, body.Pool.Size)
	assert.Equal(t, "closed", body.Fetch["breaker"])

	require.NoError(t, e.pool.Close())
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQueryCollection(t *testing.T) {
	e := setup(t)
	w := e.post(t, "/v1/query", QueryRequest{
		Source: Source{HTML: fixture},
		Script: script.Script{
			Selector: ".item",
			Steps: []script.Step{
				{Method: "filter", Func: "function (i, el) { return el.textContent !== skip; }"},
			},
			Locals: map[string]any{"skip": "skip"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, "inline", resp.Source)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 2, resp.Result.Count)
	assert.Equal(t, []string{
		`<li id="a" class="item">one</li>`,
		`<li id="c" class="item">three</li>`,
	}, resp.Result.Elements)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Executions.WithLabelValues("collection", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.metrics.PagesInUse))
}

func TestQueryValue(t *testing.T) {
	e := setup(t)
	w := e.post(t, "/v1/query", QueryRequest{
		Source: Source{HTML: fixture},
		Script: script.Script{
			Selector: "title",
			Mode:     script.ModeValue,
			Steps:    []script.Step{{Method: "text"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Items", decode(t, w).Result.Value)
}

func TestQueryConsole(t *testing.T) {
	e := setup(t)
	w := e.post(t, "/v1/query", QueryRequest{
		Source: Source{HTML: fixture},
		Script: script.Script{
			Selector: "#a",
			Steps:    []script.Step{{Method: "filter", Func: `function (i, el) { console.log("seen " + el.textContent); return true; }`}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var messages []string
	for _, entry := range decode(t, w).Console {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "seen one")
}

func TestQuerySanitize(t *testing.T) {
	e := setup(t)
	markup := `<ul><li class="item" onclick="steal()">one</li></ul>`
	w := e.post(t, "/v1/query", QueryRequest{
		Source:   Source{HTML: markup},
		Script:   script.Script{Selector: ".item"},
		Sanitize: true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	elements := decode(t, w).Result.Elements
	require.Len(t, elements, 1)
	assert.NotContains(t, elements[0], "onclick")
	assert.Contains(t, elements[0], "one")
}

func TestQueryURL(t *testing.T) {
	e := setup(t)
	e.fetcher.On("Get", "https://example.test/items").Return(&fetch.Document{
		URL:     "https://example.test/items",
		Status:  http.StatusOK,
		Charset: "utf-8",
		Text:    fixture,
	}, nil).Once()

	w := e.post(t, "/v1/query", QueryRequest{
		Source: Source{URL: "https://example.test/items"},
		Script: script.Script{Selector: "li"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, "https://example.test/items", resp.Source)
	assert.Equal(t, "utf-8", resp.Charset)
	assert.Equal(t, 3, resp.Result.Count)
	e.fetcher.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Operations.WithLabelValues("fetch", "ok")))
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     QueryRequest
		fetch   error
		status  int
		message string
	}{
		{
			name:    "no source",
			req:     QueryRequest{Script: script.Script{Selector: "li"}},
			status:  http.StatusBadRequest,
			message: "one of html or url",
		},
		{
			name:    "both sources",
			req:     QueryRequest{Source: Source{HTML: fixture, URL: "https://example.test"}, Script: script.Script{Selector: "li"}},
			status:  http.StatusBadRequest,
			message: "mutually exclusive",
		},
		{
			name:    "unsupported method",
			req:     QueryRequest{Source: Source{HTML: fixture}, Script: script.Script{Selector: "li", Steps: []script.Step{{Method: "ajax"}}}},
			status:  http.StatusBadRequest,
			message: "unsupported method",
		},
		{
			name:    "bad timeout",
			req:     QueryRequest{Source: Source{HTML: fixture}, Script: script.Script{Selector: "li"}, Timeout: "soon"},
			status:  http.StatusBadRequest,
			message: "invalid timeout",
		},
		{
			name: "script throws",
			req: QueryRequest{Source: Source{HTML: fixture}, Script: script.Script{
				Selector: "li",
				Steps:    []script.Step{{Method: "filter", Func: "function () { return missing; }"}},
			}},
			status:  http.StatusUnprocessableEntity,
			message: "missing is not defined",
		},
		{
			name:    "upstream status",
			req:     QueryRequest{Source: Source{URL: "https://example.test/gone"}, Script: script.Script{Selector: "li"}},
			fetch:   &fetch.StatusError{URL: "https://example.test/gone", Code: http.StatusNotFound},
			status:  http.StatusBadGateway,
			message: "404",
		},
		{
			name:    "breaker open",
			req:     QueryRequest{Source: Source{URL: "https://example.test/down"}, Script: script.Script{Selector: "li"}},
			fetch:   resilience.ErrCircuitOpen,
			status:  http.StatusServiceUnavailable,
			message: "circuit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			if tt.fetch != nil {
				e.fetcher.On("Get", tt.req.URL).Return(nil, tt.fetch)
			}
			w := e.post(t, "/v1/query", tt.req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, errorBody(t, w), tt.message)
		})
	}
}

func TestQueryMalformedBody(t *testing.T) {
	e := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWait(t *testing.T) {
	e := setup(t)

	t.Run("present", func(t *testing.T) {
		w := e.post(t, "/v1/wait", WaitRequest{Source: Source{HTML: fixture}, Selector: "#c"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 1, decode(t, w).Result.Count)
	})

	t.Run("timeout", func(t *testing.T) {
		w := e.post(t, "/v1/wait", WaitRequest{
			Source:   Source{HTML: fixture},
			Selector: "#never",
			Wait:     script.Wait{Timeout: "50ms"},
		})
		assert.Equal(t, http.StatusRequestTimeout, w.Code, w.Body.String())
		assert.Contains(t, errorBody(t, w), "#never")
	})

	t.Run("ignore", func(t *testing.T) {
		w := e.post(t, "/v1/wait", WaitRequest{
			Source:   Source{HTML: fixture},
			Selector: "#never",
			Wait:     script.Wait{Timeout: "50ms", OnTimeout: "ignore"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 0, decode(t, w).Result.Count)
	})

	t.Run("bad polling", func(t *testing.T) {
		w := e.post(t, "/v1/wait", WaitRequest{
			Source:   Source{HTML: fixture},
			Selector: "#a",
			Wait:     script.Wait{Polling: "often"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", script.ErrInvalidScript), http.StatusBadRequest},
		{jquery.ErrUnserializable, http.StatusBadRequest},
		{fmt.Errorf("%w: #x", jquery.ErrWaitTimeout), http.StatusRequestTimeout},
		{&jquery.ExecError{Code: "$('x')", Err: sandbox.ErrTimeout}, http.StatusGatewayTimeout},
		{&jquery.ExecError{Code: "$('x')", Err: errors.New("boom")}, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{sandbox.ErrExhausted, http.StatusServiceUnavailable},
		{resilience.ErrTooManyRequests, http.StatusServiceUnavailable},
		{fetch.ErrTooLarge, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestValidateScript(t *testing.T) {
	deep := any("leaf")
	for i := 0; i < MaxLocalsDepth+1; i++ {
		deep = []any{deep}
	}
	steps := make([]script.Step, MaxSteps+1)

	tests := []struct {
		name string
		s    script.Script
		want string
	}{
		{"ok", script.Script{Selector: "li", Locals: map[string]any{"n": map[string]any{"a": []any{1.0}}}}, ""},
		{"too deep", script.Script{Selector: "li", Locals: map[string]any{"deep": deep}}, "nesting depth"},
		{"too large", script.Script{Selector: "li", Locals: map[string]any{"big": strings.Repeat("x", MaxLocalsSize)}}, "locals size"},
		{"too many steps", script.Script{Selector: "li", Steps: steps}, "steps exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateScript(&tt.s)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errBadRequest)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
