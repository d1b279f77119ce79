// Package ingest reads and writes seed files of items and watches a seed
// file for changes.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// ErrUnknownFormat is returned for files whose extension maps to no format.
var ErrUnknownFormat = errors.New("unknown seed file format")

// FileFormat represents the supported seed file formats
type FileFormat int

const (
	FormatUnknown     FileFormat = iota
	FormatText                   // text<TAB>lang<TAB>popularity lines
	FormatJSONL                  // one JSON item per line
	FormatMsgpack                // stream of msgpack items
	FormatMsgpackZstd            // zstd-compressed msgpack stream
)

// FormatInfo contains metadata about a seed file format
type FormatInfo struct {
	Format      FileFormat
	Description string
	Extensions  []string
}

var supportedFormats = []FormatInfo{
	{Format: FormatText, Description: "Tab separated text", Extensions: []string{".tsv", ".txt"}},
	{Format: FormatJSONL, Description: "JSON lines", Extensions: []string{".jsonl", ".ndjson"}},
	{Format: FormatMsgpack, Description: "MessagePack stream", Extensions: []string{".msgpack", ".mp"}},
	{Format: FormatMsgpackZstd, Description: "Zstandard compressed MessagePack stream", Extensions: []string{".msgpack.zst", ".mp.zst"}},
}

func (f FileFormat) String() string {
	if info, ok := GetFormatInfo(f); ok {
		return info.Description
	}
	return "unknown"
}

// DetectFormat picks the format from the file name. Compound extensions
// such as .msgpack.zst are matched before single ones.
func DetectFormat(filename string) (FileFormat, error) {
	base := strings.ToLower(filepath.Base(filename))
	ext := filepath.Ext(base)
	if ext == ".zst" {
		ext = filepath.Ext(strings.TrimSuffix(base, ext)) + ext
	}
	for _, info := range supportedFormats {
		if slices.Contains(info.Extensions, ext) {
			return info.Format, nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: %s", ErrUnknownFormat, filename)
}

// GetFormatInfo returns information about a specific format
func GetFormatInfo(format FileFormat) (FormatInfo, bool) {
	for _, info := range supportedFormats {
		if info.Format == format {
			return info, true
		}
	}
	return FormatInfo{}, false
}

// ListSupportedFormats returns all supported formats
func ListSupportedFormats() []FormatInfo {
	return slices.Clone(supportedFormats)
}
