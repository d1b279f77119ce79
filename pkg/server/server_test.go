package server

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/suggestserve/pkg/index"
	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/normalize"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

func newEngine(t *testing.T) (*suggest.Engine, *index.Index) {
	t.Helper()
	ix := index.New(normalize.New(normalize.DefaultRules()))
	_, err := ix.Rebuild(context.Background(), item.Seq([]item.Item{
		{ID: 1, Text: "Apple Pie", Language: "en", Popularity: 5},
		{ID: 2, Text: "Apple Tart", Language: "en", Popularity: 9},
		{ID: 3, Text: "Manzana", Language: "es", Popularity: 3},
	}))
	require.NoError(t, err)
	return suggest.NewEngine(ix, suggest.DefaultConfig()), ix
}

// run feeds requests to a server and returns the decoder over its output,
// positioned after the ready message.
func run(t *testing.T, srv func(in, out *bytes.Buffer) *Server, reqs ...any) *msgpack.Decoder {
	t.Helper()
	var in, out bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	for _, r := range reqs {
		require.NoError(t, enc.Encode(r))
	}

	require.NoError(t, srv(&in, &out).Start(context.Background()))

	dec := msgpack.NewDecoder(&out)
	var ready map[string]string
	require.NoError(t, dec.Decode(&ready))
	assert.Equal(t, "ready", ready["status"])
	return dec
}

func TestServer_Suggest(t *testing.T) {
	e, _ := newEngine(t)
	dec := run(t, func(in, out *bytes.Buffer) *Server {
		return NewServer(e, WithIO(in, out))
	},
		Request{ID: "a", Query: "app", Limit: 8},
		Request{ID: "b", Query: "man", Language: "en"},
	)

	var first SuggestResponse
	require.NoError(t, dec.Decode(&first))
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, 2, first.Count)
	assert.Equal(t, []suggest.Suggestion{{ID: 2, Text: "Apple Tart"}, {ID: 1, Text: "Apple Pie"}}, first.Suggestions)

	var second SuggestResponse
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "b", second.ID)
	assert.Zero(t, second.Count)
}

func TestServer_Errors(t *testing.T) {
	e, _ := newEngine(t)
	dec := run(t, func(in, out *bytes.Buffer) *Server {
		return NewServer(e, WithIO(in, out), WithMaxQueryRunes(10))
	},
		Request{ID: "short", Query: "a"},
		Request{ID: "lang", Query: "app", Language: "xx"},
		Request{ID: "long", Query: "an overly long query"},
	)

	for _, want := range []struct{ id, code string }{
		{"short", "INVALID_QUERY"},
		{"lang", "INVALID_FILTER"},
		{"long", "INVALID_QUERY"},
	} {
		var got SuggestError
		require.NoError(t, dec.Decode(&got))
		assert.Equal(t, want.id, got.ID)
		assert.Equal(t, want.code, got.Code)
		assert.NotEmpty(t, got.Error)
	}
}

type fakeRefresher struct {
	ix  *index.Index
	err error
}

func (f fakeRefresher) Refresh(ctx context.Context) (*index.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ix.Rebuild(ctx, item.Seq(nil))
}

func TestServer_Control(t *testing.T) {
	e, ix := newEngine(t)
	dec := run(t, func(in, out *bytes.Buffer) *Server {
		return NewServer(e, WithIO(in, out), WithRefresher(fakeRefresher{ix: ix}))
	},
		Request{ID: "1", Action: ActionHealth},
		Request{ID: "2", Action: ActionStats},
		Request{ID: "3", Action: ActionRefresh},
		Request{ID: "4", Action: "reboot"},
	)

	var health, stats, refresh, unknown ControlResponse
	require.NoError(t, dec.Decode(&health))
	require.NoError(t, dec.Decode(&stats))
	require.NoError(t, dec.Decode(&refresh))
	require.NoError(t, dec.Decode(&unknown))

	assert.Equal(t, "ok", health.Status)
	require.NotNil(t, stats.Stats)
	assert.Equal(t, 3, stats.Stats.Items)
	require.NotNil(t, refresh.Stats)
	assert.Equal(t, uint64(2), refresh.Stats.Generation)
	assert.Zero(t, refresh.Stats.Items)
	assert.Equal(t, "error", unknown.Status)
}

func TestServer_RefreshFailureHidesDetail(t *testing.T) {
	e, ix := newEngine(t)
	dec := run(t, func(in, out *bytes.Buffer) *Server {
		return NewServer(e, WithIO(in, out), WithRefresher(fakeRefresher{ix: ix, err: errors.New("disk on fire")}))
	},
		Request{ID: "1", Action: ActionRefresh},
	)

	var resp ControlResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "error", resp.Status)
	assert.NotContains(t, resp.Error, "disk")
}

func TestServer_MalformedInput(t *testing.T) {
	e, _ := newEngine(t)
	in := bytes.NewBuffer([]byte{0xc1}) // reserved msgpack code
	var out bytes.Buffer

	err := NewServer(e, WithIO(in, &out)).Start(context.Background())
	assert.Error(t, err)
}
