package gateway

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/suggestserve/pkg/suggest"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"
)

// SuggestResponse is the success body of GET /v1/suggest.
type SuggestResponse struct {
	Query       string               `json:"query" msgpack:"query"`
	Suggestions []suggest.Suggestion `json:"suggestions" msgpack:"suggestions"`
	TookMs      float64              `json:"tookMs" msgpack:"tookMs"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	ErrorCode string `json:"errorCode" msgpack:"errorCode"`
	Message   string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// wantsMsgpack reports whether the client asked for msgpack.
func wantsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		switch strings.TrimSpace(mediaType) {
		case contentTypeMsgpack, "application/x-msgpack":
			return true
		}
	}
	return false
}

func writeBody(w http.ResponseWriter, r *http.Request, status int, body any) {
	var (
		data        []byte
		err         error
		contentType string
	)
	if wantsMsgpack(r) {
		contentType = contentTypeMsgpack
		data, err = msgpack.Marshal(body)
	} else {
		contentType = contentTypeJSON
		data, err = json.Marshal(body)
	}
	if err != nil {
		log.Errorf("Encoding response: %v", err)
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errorCode":"INTERNAL"}`))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(data)
}

func statusFor(kind suggest.Kind) int {
	switch kind {
	case suggest.KindInvalidQuery, suggest.KindInvalidFilter:
		return http.StatusBadRequest
	case suggest.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto the error taxonomy. Internal detail is logged,
// never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := suggest.KindOf(err)
	if kind == suggest.KindInternal {
		log.Error("Request failed", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "err", err)
	}
	writeBody(w, r, statusFor(kind), ErrorResponse{
		ErrorCode: kind.Code(),
		Message:   suggest.PublicMessage(err),
	})
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration, client, reason string) {
	log.Debug("Rejected", "client", client, "request_id", requestIDFrom(r.Context()), "err", suggest.RateLimited(reason))
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(secs))
	writeBody(w, r, http.StatusTooManyRequests, ErrorResponse{ErrorCode: suggest.KindRateLimited.Code()})
}
