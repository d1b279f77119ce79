package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/suggestserve/pkg/gateway"
	"github.com/bastiangx/suggestserve/pkg/index"
	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/normalize"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

func newServer(t *testing.T, cfg gateway.Config) *httptest.Server {
	t.Helper()
	ix := index.New(normalize.New(normalize.DefaultRules()))
	_, err := ix.Rebuild(context.Background(), item.Seq([]item.Item{
		{ID: 1, Text: "Apple Pie", Language: "en", Popularity: 5},
		{ID: 2, Text: "Apple Tart", Language: "en", Popularity: 9},
		{ID: 3, Text: "Manzana", Language: "es", Popularity: 3},
	}))
	require.NoError(t, err)

	gw := gateway.New(cfg, suggest.NewEngine(ix, suggest.DefaultConfig()), nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Suggest(t *testing.T) {
	srv := newServer(t, gateway.Config{})

	for _, opts := range [][]Option{nil, {WithMsgpack()}} {
		c, err := New(srv.URL, opts...)
		require.NoError(t, err)

		res, err := c.Suggest(context.Background(), "app", "en", 1)
		require.NoError(t, err)
		assert.Equal(t, "app", res.Query)
		assert.Equal(t, []suggest.Suggestion{{ID: 2, Text: "Apple Tart"}}, res.Suggestions)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := newServer(t, gateway.Config{})
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Suggest(context.Background(), "a", "", 0)
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_QUERY", apiErr.Code)
	assert.NotEmpty(t, apiErr.Message)
	assert.ErrorIs(t, err, suggest.ErrInvalidQuery)

	_, err = c.Suggest(context.Background(), "app", "xx", 0)
	assert.ErrorIs(t, err, suggest.ErrInvalidFilter)
}

func TestClient_RateLimited(t *testing.T) {
	srv := newServer(t, gateway.Config{RequestsPerSecond: 0.001, Burst: 1})
	c, err := New(srv.URL, WithClientID("tester"))
	require.NoError(t, err)

	_, err = c.Suggest(context.Background(), "app", "", 0)
	require.NoError(t, err)

	_, err = c.Suggest(context.Background(), "app", "", 0)
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.ErrorIs(t, err, suggest.ErrRateLimited)
	assert.GreaterOrEqual(t, apiErr.RetryAfter, time.Second)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("localhost")
	assert.Error(t, err)
}
