/*
Package server implements msgpack IPC for suggestion services.

Clients write a stream of msgpack maps to stdin and read one msgpack map per
request from stdout. Every message carries an ID that is echoed back.

Suggestion requests:

	{"id": "req_001", "p": "app", "lang": "en", "l": 8}

are answered with suggestions best first, the count and the time taken in
microseconds:

	{"id": "req_001", "s": [{"i": 2, "w": "Apple Tart"}, {"i": 1, "w": "Apple Pie"}], "c": 2, "t": 145}

or with an error code shared with the HTTP gateway:

	{"id": "req_001", "e": "query must be at least 2 characters", "c": "INVALID_QUERY"}

Internal errors carry no message.

Control requests name an action instead of a query:

	{"id": "ctl_001", "action": "stats"}
	{"id": "ctl_002", "action": "refresh"}
	{"id": "ctl_003", "action": "health"}

On start the server writes {"status": "ready"}.
*/
package server

import "github.com/bastiangx/suggestserve/pkg/suggest"

// Request is any inbound message. Action selects a control request;
// without it the message is a suggestion request.
type Request struct {
	ID       string `msgpack:"id"`
	Query    string `msgpack:"p"`
	Language string `msgpack:"lang,omitempty"`
	Limit    int    `msgpack:"l,omitempty"`
	Action   string `msgpack:"action,omitempty"`
}

// SuggestResponse answers a suggestion request.
type SuggestResponse struct {
	ID          string               `msgpack:"id"`
	Suggestions []suggest.Suggestion `msgpack:"s"`
	Count       int                  `msgpack:"c"`
	TimeTaken   int64                `msgpack:"t"`
}

// SuggestError reports a failed suggestion request.
type SuggestError struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e,omitempty"`
	Code  string `msgpack:"c"`
}

// ControlResponse answers a control request.
type ControlResponse struct {
	ID     string         `msgpack:"id"`
	Status string         `msgpack:"status"`
	Error  string         `msgpack:"error,omitempty"`
	Stats  *suggest.Stats `msgpack:"stats,omitempty"`
}

// Control actions.
const (
	ActionHealth  = "health"
	ActionStats   = "stats"
	ActionRefresh = "refresh"
)
