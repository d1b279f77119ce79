package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/suggestserve/internal/utils"
	"github.com/bastiangx/suggestserve/pkg/index"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

// Refresher rebuilds the index on request.
type Refresher interface {
	Refresh(ctx context.Context) (*index.Snapshot, error)
}

// Server handles the IPC for suggestions
type Server struct {
	suggester     suggest.ISuggester
	refresher     Refresher
	maxQueryRunes int

	reader io.Reader
	writer *bufio.Writer
	mu     sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithIO replaces stdin/stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(s *Server) {
		s.reader = r
		s.writer = bufio.NewWriter(w)
	}
}

// WithRefresher enables the refresh action.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// WithMaxQueryRunes bounds raw query length before normalization.
func WithMaxQueryRunes(n int) Option {
	return func(s *Server) { s.maxQueryRunes = n }
}

// NewServer creates a suggestion server using stdin/stdout for IPC
func NewServer(suggester suggest.ISuggester, opts ...Option) *Server {
	s := &Server{
		suggester: suggester,
		reader:    os.Stdin,
		writer:    bufio.NewWriter(os.Stdout),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start processes requests until the input ends or ctx is done.
// Requests are answered in the order they arrive.
func (s *Server) Start(ctx context.Context) error {
	log.Debug("Starting IPC server.")
	s.send(map[string]string{"status": "ready"})

	dec := msgpack.NewDecoder(bufio.NewReader(s.reader))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug("IPC input closed")
				return nil
			}
			log.Errorf("Decoding request: %v", err)
			s.send(SuggestError{Code: suggest.KindInvalidQuery.Code(), Error: "malformed request"})
			return err
		}
		s.handleRequest(ctx, req)
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) {
	switch req.Action {
	case "":
		s.handleSuggest(ctx, req)
	case ActionHealth:
		s.send(ControlResponse{ID: req.ID, Status: "ok"})
	case ActionStats:
		stats := s.suggester.Stats()
		s.send(ControlResponse{ID: req.ID, Status: "ok", Stats: &stats})
	case ActionRefresh:
		s.handleRefresh(ctx, req)
	default:
		s.send(ControlResponse{ID: req.ID, Status: "error", Error: "unknown action: " + req.Action})
	}
}

func (s *Server) handleSuggest(ctx context.Context, req Request) {
	if reason := utils.CheckQuery(req.Query, s.maxQueryRunes); reason != "" {
		s.send(SuggestError{ID: req.ID, Error: reason, Code: suggest.KindInvalidQuery.Code()})
		return
	}

	start := time.Now()
	res, err := s.suggester.Suggest(ctx, suggest.Query{
		Text:     req.Query,
		Language: req.Language,
		Limit:    req.Limit,
	})
	if err != nil {
		kind := suggest.KindOf(err)
		if !kind.ClientError() {
			log.Error("Suggest failed", "id", req.ID, "err", err)
		}
		s.send(SuggestError{ID: req.ID, Error: suggest.PublicMessage(err), Code: kind.Code()})
		return
	}

	s.send(SuggestResponse{
		ID:          req.ID,
		Suggestions: res.Suggestions,
		Count:       len(res.Suggestions),
		TimeTaken:   time.Since(start).Microseconds(),
	})
}

func (s *Server) handleRefresh(ctx context.Context, req Request) {
	if s.refresher == nil {
		s.send(ControlResponse{ID: req.ID, Status: "error", Error: "refresh not available"})
		return
	}
	if _, err := s.refresher.Refresh(ctx); err != nil {
		log.Errorf("IPC refresh failed: %v", err)
		s.send(ControlResponse{ID: req.ID, Status: "error", Error: "refresh failed"})
		return
	}
	stats := s.suggester.Stats()
	s.send(ControlResponse{ID: req.ID, Status: "ok", Stats: &stats})
}

// send encodes one response and flushes it.
func (s *Server) send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := msgpack.NewEncoder(s.writer).Encode(v); err != nil {
		log.Errorf("Encoding response: %v", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		log.Errorf("Writing response: %v", err)
	}
}
