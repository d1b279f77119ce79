// Package cli handles cmd line input and suggestions for DBG and testing various features
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/suggestserve/internal/utils"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

// InputHandler reads queries line by line and prints ranked suggestions.
// Lines starting with ':' are commands:
//
//	:lang <tag>   filter by language (":lang" alone clears it)
//	:limit <n>    change the result limit
//	:stats        print index and cache statistics
//	:quit         leave
type InputHandler struct {
	suggester    suggest.ISuggester
	in           io.Reader
	out          io.Writer
	language     string
	suggestLimit int
	noFilter     bool
}

// NewInputHandler handles initialization of the InputHandler with basic parameters
func NewInputHandler(suggester suggest.ISuggester, in io.Reader, out io.Writer, limit int, noFilter bool) *InputHandler {
	return &InputHandler{
		suggester:    suggester,
		in:           in,
		out:          out,
		suggestLimit: limit,
		noFilter:     noFilter,
	}
}

// SetLanguage sets the language filter; an empty tag clears it.
func (h *InputHandler) SetLanguage(tag string) {
	h.language = tag
}

// Start runs the loop until input ends, :quit, or ctx is done.
func (h *InputHandler) Start(ctx context.Context) error {
	fmt.Fprintln(h.out, "SuggestServe CLI")
	fmt.Fprintln(h.out, "type something and press Enter to see the suggestions (:quit to exit):")

	scanner := bufio.NewScanner(h.in)
	for {
		fmt.Fprint(h.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if quit := h.handleCommand(line); quit {
				return nil
			}
			continue
		}
		h.handleInput(ctx, line)
	}
}

func (h *InputHandler) handleCommand(line string) bool {
	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "q", "quit", "exit":
		return true
	case "lang":
		h.language = arg
		if arg == "" {
			fmt.Fprintln(h.out, "language filter cleared")
		} else {
			fmt.Fprintf(h.out, "language filter: %s\n", arg)
		}
	case "limit":
		n, err := strconv.Atoi(arg)
		if err != nil {
			log.Errorf("Invalid limit %q", arg)
			return false
		}
		h.suggestLimit = n
		fmt.Fprintf(h.out, "limit: %d (effective %d)\n", n, h.suggester.EffectiveLimit(n))
	case "stats":
		st := h.suggester.Stats()
		fmt.Fprintf(h.out, "items=%d keys=%d generation=%d cache=%d/%d hits=%d misses=%d\n",
			st.Items, st.Keys, st.Generation, st.Cache.Entries, st.Cache.MaxEntries, st.Cache.Hits, st.Cache.Misses)
	default:
		log.Errorf("Unknown command :%s", name)
	}
	return false
}

// handleInput runs one query and prints the results.
func (h *InputHandler) handleInput(ctx context.Context, text string) {
	// input filtering by default (unless --no-filter flag is used)
	if !h.noFilter && utils.IsRepetitive(text) {
		log.Warnf("No suggestions found for '%s' (filtered out)", text)
		return
	}

	res, err := h.suggester.Suggest(ctx, suggest.Query{Text: text, Language: h.language, Limit: h.suggestLimit})
	if err != nil {
		if msg := suggest.PublicMessage(err); msg != "" {
			fmt.Fprintf(h.out, "%s: %s\n", suggest.KindOf(err).Code(), msg)
			return
		}
		log.Errorf("Suggest failed: %v", err)
		return
	}
	log.Debugf("Took [ %v ] for '%s' (cached=%v)", res.Took, res.Query, res.Cached)

	if len(res.Suggestions) == 0 {
		fmt.Fprintf(h.out, "No suggestions found for '%s'\n", res.Query)
		return
	}

	fmt.Fprintf(h.out, "Found %d suggestions for '%s':\n", len(res.Suggestions), res.Query)
	for i, s := range res.Suggestions {
		clWord := fmt.Sprintf("\033[38;5;75m%s\033[0m", s.Text)
		fmt.Fprintf(h.out, "%2d. %-40s (id: %d)\n", i+1, clWord, s.ID)
	}
}
