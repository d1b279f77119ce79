package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/suggestserve/pkg/client"
	"github.com/bastiangx/suggestserve/pkg/gateway"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

func fakeFetch(_ context.Context, text string) (*gateway.SuggestResponse, error) {
	return &gateway.SuggestResponse{
		Query:       text,
		Suggestions: []suggest.Suggestion{{ID: 1, Text: text + " one"}, {ID: 2, Text: text + " two"}},
	}, nil
}

func typeText(m *Model, s string) {
	for _, r := range s {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func TestModel_ShowsNewestResult(t *testing.T) {
	m := New("test", 20*time.Millisecond, fakeFetch)
	defer m.Close()

	typeText(m, "ap")
	msg := m.waitForResult()()
	m.Update(msg)

	require.NotNil(t, m.results)
	assert.Equal(t, "ap", m.results.Query)
	assert.Contains(t, m.View(), "ap one")
}

func TestModel_IgnoresOlderSequence(t *testing.T) {
	m := New("test", time.Hour, fakeFetch)
	defer m.Close()
	m.input.SetValue("app")

	newer := client.Response[*gateway.SuggestResponse]{Seq: 5, Value: &gateway.SuggestResponse{Query: "app"}}
	older := client.Response[*gateway.SuggestResponse]{Seq: 4, Value: &gateway.SuggestResponse{Query: "ap"}}
	m.Update(resultMsg(newer))
	m.Update(resultMsg(older))

	assert.Equal(t, "app", m.results.Query)
}

func TestModel_SelectAndAccept(t *testing.T) {
	m := New("test", time.Hour, fakeFetch)
	defer m.Close()
	m.input.SetValue("red")
	m.apply(client.Response[*gateway.SuggestResponse]{Seq: 1, Value: &gateway.SuggestResponse{
		Suggestions: []suggest.Suggestion{{ID: 1, Text: "Red Shoes"}, {ID: 2, Text: "Red Hat"}},
	}})

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "Red Hat", m.Chosen())
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_ShowsClientErrorMessage(t *testing.T) {
	m := New("test", time.Hour, fakeFetch)
	defer m.Close()
	m.input.SetValue("a")
	m.apply(client.Response[*gateway.SuggestResponse]{Seq: 1, Err: &client.APIError{
		Status: 400, Code: "INVALID_QUERY", Message: "query must be at least 2 characters",
	}})

	assert.Contains(t, m.View(), "at least 2 characters")
}
