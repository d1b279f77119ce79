package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/suggestserve/pkg/item"
)

// Export writes items to path in the format its extension names. The file
// is written to a temporary name and renamed into place, so a watcher never
// sees a partial file.
func Export(path string, items iter.Seq2[item.Item, error]) (int, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := Encode(tmp, format, items)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, err
	}
	log.Debugf("Exported %d items to %s (%s)", n, path, format)
	return n, nil
}

// Encode writes items to w and returns how many were written.
func Encode(w io.Writer, format FileFormat, items iter.Seq2[item.Item, error]) (int, error) {
	bw := bufio.NewWriter(w)

	var (
		n   int
		err error
	)
	switch format {
	case FormatText:
		n, err = encodeText(bw, items)
	case FormatJSONL:
		n, err = encodeJSONL(bw, items)
	case FormatMsgpack:
		n, err = encodeMsgpack(bw, items)
	case FormatMsgpackZstd:
		var zw *zstd.Encoder
		zw, err = zstd.NewWriter(bw)
		if err != nil {
			return 0, fmt.Errorf("zstd: %w", err)
		}
		n, err = encodeMsgpack(zw, items)
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
	default:
		return 0, ErrUnknownFormat
	}
	if err != nil {
		return n, err
	}
	return n, bw.Flush()
}

// encodeText drops ids; text files are for hand-edited seeds.
func encodeText(w *bufio.Writer, items iter.Seq2[item.Item, error]) (int, error) {
	n := 0
	for it, err := range items {
		if err != nil {
			return n, err
		}
		w.WriteString(it.Text)
		w.WriteByte('\t')
		w.WriteString(it.Language)
		w.WriteByte('\t')
		w.WriteString(strconv.FormatFloat(it.Popularity, 'g', -1, 64))
		if err := w.WriteByte('\n'); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func encodeJSONL(w io.Writer, items iter.Seq2[item.Item, error]) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for it, err := range items {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(it); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func encodeMsgpack(w io.Writer, items iter.Seq2[item.Item, error]) (int, error) {
	enc := msgpack.NewEncoder(w)
	n := 0
	for it, err := range items {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(&it); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
