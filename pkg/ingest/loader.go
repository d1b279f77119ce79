package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/suggestserve/pkg/item"
)

// maxLineBytes bounds a single text or JSON line.
const maxLineBytes = 64 * 1024

// Load reads every item from a seed file. Ids in the file are kept, so a
// file exported from a store reloads onto the same ids; id 0 lets the store
// assign one.
func Load(path string) ([]item.Item, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file %s: %w", path, err)
	}
	defer file.Close()

	items, err := Decode(file, format)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	log.Debugf("Loaded %d items from %s (%s)", len(items), path, format)
	return items, nil
}

// Decode reads items in the given format from r.
func Decode(r io.Reader, format FileFormat) ([]item.Item, error) {
	switch format {
	case FormatText:
		return decodeText(r)
	case FormatJSONL:
		return decodeJSONL(r)
	case FormatMsgpack:
		return decodeMsgpack(r)
	case FormatMsgpackZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		return decodeMsgpack(zr)
	default:
		return nil, ErrUnknownFormat
	}
}

// decodeText parses text<TAB>lang<TAB>popularity lines. Blank lines and
// lines starting with # are skipped; popularity may be omitted.
func decodeText(r io.Reader) ([]item.Item, error) {
	var items []item.Item
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("line %d: expected text, language and optional popularity separated by tabs", lineNo)
		}
		it := item.Item{
			Text:     strings.TrimSpace(fields[0]),
			Language: strings.TrimSpace(fields[1]),
		}
		if len(fields) == 3 && strings.TrimSpace(fields[2]) != "" {
			pop, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid popularity %q", lineNo, fields[2])
			}
			it.Popularity = pop
		}
		items = append(items, it)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeJSONL(r io.Reader) ([]item.Item, error) {
	var items []item.Item
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var it item.Item
		if err := json.Unmarshal([]byte(line), &it); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		items = append(items, it)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeMsgpack(r io.Reader) ([]item.Item, error) {
	var items []item.Item
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	for {
		var it item.Item
		if err := dec.Decode(&it); err != nil {
			if errors.Is(err, io.EOF) {
				return items, nil
			}
			return nil, fmt.Errorf("item %d: %w", len(items), err)
		}
		items = append(items, it)
	}
}
