package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/suggestserve/pkg/catalog"
	"github.com/bastiangx/suggestserve/pkg/index"
	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/normalize"
	"github.com/bastiangx/suggestserve/pkg/store"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

func testConfig() Config {
	return Config{MaxQueryRunes: 64}
}

func newTestGateway(t *testing.T, cfg Config) (*Gateway, *catalog.Catalog) {
	t.Helper()
	langs := item.Languages{"en", "es"}
	ix := index.New(normalize.New(normalize.DefaultRules()))
	cat := catalog.New(store.NewMemory(), ix, langs, time.Second)
	_, err := cat.Upsert(context.Background(), []item.Item{
		{Text: "Apple Pie", Language: "en", Popularity: 5},
		{Text: "Apple Tart", Language: "en", Popularity: 9},
		{Text: "Manzana", Language: "es", Popularity: 3},
	}, true)
	require.NoError(t, err)

	ecfg := suggest.DefaultConfig()
	ecfg.Languages = langs
	return New(cfg, suggest.NewEngine(ix, ecfg), cat), cat
}

func do(t *testing.T, g *Gateway, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSuggest_Success(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())
	rec := do(t, g, http.MethodGet, "/v1/suggest?q=App&limit=8", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeJSON, rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	var body SuggestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "app", body.Query)
	assert.Equal(t, []suggest.Suggestion{{ID: 2, Text: "Apple Tart"}, {ID: 1, Text: "Apple Pie"}}, body.Suggestions)
	assert.GreaterOrEqual(t, body.TookMs, 0.0)
}

func TestSuggest_Msgpack(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())
	rec := do(t, g, http.MethodGet, "/v1/suggest?q=man&lang=es", "", "Accept", "application/msgpack")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeMsgpack, rec.Header().Get("Content-Type"))

	var body SuggestResponse
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []suggest.Suggestion{{ID: 3, Text: "Manzana"}}, body.Suggestions)
}

func TestSuggest_ErrorMapping(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"too short", "/v1/suggest?q=a", http.StatusBadRequest, "INVALID_QUERY"},
		{"missing", "/v1/suggest", http.StatusBadRequest, "INVALID_QUERY"},
		{"bad limit", "/v1/suggest?q=app&limit=ten", http.StatusBadRequest, "INVALID_QUERY"},
		{"control char", "/v1/suggest?q=ap%00p", http.StatusBadRequest, "INVALID_QUERY"},
		{"raw too long", "/v1/suggest?q=" + strings.Repeat("a", 65), http.StatusBadRequest, "INVALID_QUERY"},
		{"unknown language", "/v1/suggest?q=app&lang=xx", http.StatusBadRequest, "INVALID_FILTER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, g, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.ErrorCode)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestSuggest_FilteredEmptyIsSuccess(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())
	rec := do(t, g, http.MethodGet, "/v1/suggest?q=man&lang=en", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "suggestions")))
}

func mustField(t *testing.T, data []byte, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return m[field]
}

func TestSuggest_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 2
	cfg.TrustClientID = true
	g, _ := newTestGateway(t, cfg)

	for range 2 {
		rec := do(t, g, http.MethodGet, "/v1/suggest?q=app", "", HeaderClientID, "alice")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, g, http.MethodGet, "/v1/suggest?q=app", "", HeaderClientID, "alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRetryAfter))
	body := decodeError(t, rec)
	assert.Equal(t, "RATE_LIMITED", body.ErrorCode)
	assert.Empty(t, body.Message)

	// other clients have their own bucket
	rec = do(t, g, http.MethodGet, "/v1/suggest?q=app", "", HeaderClientID, "bob")
	assert.Equal(t, http.StatusOK, rec.Code)

	// operator routes are not limited
	rec = do(t, g, http.MethodGet, "/v1/stats", "", HeaderClientID, "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSuggest_RateLimitedIgnoresUntrustedClientID(t *testing.T) {
	cfg := testConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 2
	g, _ := newTestGateway(t, cfg)

	admitted := 0
	for i := range 50 {
		rec := do(t, g, http.MethodGet, "/v1/suggest?q=app", "", HeaderClientID, fmt.Sprintf("client-%d", i))
		if rec.Code == http.StatusOK {
			admitted++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
	assert.Equal(t, 2, admitted)
	assert.Equal(t, 1, g.limiter.Len())
}

type blockingSuggester struct {
	suggest.ISuggester
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSuggester) Suggest(ctx context.Context, q suggest.Query) (*suggest.Result, error) {
	b.entered <- struct{}{}
	<-b.release
	return &suggest.Result{Suggestions: []suggest.Suggestion{}}, nil
}

func TestSuggest_InFlightBound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInFlight = 1
	g, _ := newTestGateway(t, cfg)
	bs := &blockingSuggester{ISuggester: g.engine, entered: make(chan struct{}), release: make(chan struct{})}
	g = New(cfg, bs, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec := do(t, g, http.MethodGet, "/v1/suggest?q=app", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}()
	<-bs.entered

	rec := do(t, g, http.MethodGet, "/v1/suggest?q=app", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rec).ErrorCode)

	close(bs.release)
	wg.Wait()
}

type failingSuggester struct {
	suggest.ISuggester
	panic bool
}

func (f failingSuggester) Suggest(ctx context.Context, q suggest.Query) (*suggest.Result, error) {
	if f.panic {
		panic("boom")
	}
	return nil, &suggest.Error{Kind: suggest.KindInternal, Msg: "lookup timed out", Err: context.DeadlineExceeded}
}

func TestSuggest_InternalHidesDetail(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())
	for _, panics := range []bool{false, true} {
		gw := New(testConfig(), failingSuggester{ISuggester: g.engine, panic: panics}, nil)
		rec := do(t, gw, http.MethodGet, "/v1/suggest?q=app", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "INTERNAL", body.ErrorCode)
		assert.Empty(t, body.Message)
		assert.NotContains(t, rec.Body.String(), "deadline")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())
	id := "2f1c3b1e-8a4e-4d8a-9a55-0c1f0f9d7c11"

	rec := do(t, g, http.MethodGet, "/healthz", "", HeaderRequestID, id)
	assert.Equal(t, id, rec.Header().Get(HeaderRequestID))

	rec = do(t, g, http.MethodGet, "/healthz", "", HeaderRequestID, "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(HeaderRequestID))
}

func TestAdmin_UpsertAndSuggest(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())

	rec := do(t, g, http.MethodPost, "/v1/items",
		`{"items":[{"text":"Apple Crumble","language":"en","popularity":20}],"refresh":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var up UpsertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	require.Len(t, up.Items, 1)
	assert.Equal(t, uint32(4), up.Items[0].ID)

	rec = do(t, g, http.MethodGet, "/v1/suggest?q=apple", "")
	var body SuggestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Suggestions)
	assert.Equal(t, "Apple Crumble", body.Suggestions[0].Text)
}

func TestAdmin_Errors(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())

	rec := do(t, g, http.MethodPost, "/v1/items", `{"items":[{"text":"","language":"en"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidItem, decodeError(t, rec).ErrorCode)

	rec = do(t, g, http.MethodPost, "/v1/items", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, g, http.MethodDelete, "/v1/items/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).ErrorCode)

	rec = do(t, g, http.MethodDelete, "/v1/items/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, g, http.MethodPut, "/v1/items/1/popularity", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_PopularityAndRemove(t *testing.T) {
	g, _ := newTestGateway(t, testConfig())

	rec := do(t, g, http.MethodPut, "/v1/items/1/popularity", `{"popularity": 50}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, g, http.MethodGet, "/v1/suggest?q=app", "")
	var body SuggestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Apple Pie", body.Suggestions[0].Text)

	rec = do(t, g, http.MethodDelete, "/v1/items/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, g, http.MethodGet, "/v1/suggest?q=app", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []suggest.Suggestion{{ID: 2, Text: "Apple Tart"}}, body.Suggestions)
}

func TestAdmin_Token(t *testing.T) {
	cfg := testConfig()
	cfg.AdminToken = "s3cret"
	g, _ := newTestGateway(t, cfg)

	rec := do(t, g, http.MethodPost, "/v1/index/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, g, http.MethodPost, "/v1/index/refresh", "", "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Engine.Items)
	require.NotNil(t, stats.Catalog)
	assert.False(t, stats.Catalog.Stale)

	// the public endpoint needs no token
	rec = do(t, g, http.MethodGet, "/v1/suggest?q=app", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServe_Shutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "127.0.0.1:0"
	g, _ := newTestGateway(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.ListenAndServe(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}
