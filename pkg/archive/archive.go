// Package archive decompresses report artifacts and decodes them into rows.
//
// A report artifact is a compressed byte blob holding exactly one inner
// file: CSV for the marketplace report endpoints (zip) or JSON lines for
// the advertising report endpoints (gzip). The CSV decoder carries a
// repair pass for the malformed quoting the marketplace export tool is
// known to emit.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Codec identifies the compression codec of a report artifact.
type Codec int

const (
	// CodecZip is a zip archive with a single inner entry (marketplace reports).
	CodecZip Codec = iota

	// CodecGzip is a gzip stream wrapping the report body directly
	// (advertising reports).
	CodecGzip
)

// String returns the codec name for logging.
func (c Codec) String() string {
	switch c {
	case CodecZip:
		return "zip"
	case CodecGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Decompress extracts the inner file of a report artifact.
//
// Zip artifacts are expected to contain exactly one entry; the first entry
// is taken without validating its name. Multi-entry archives are not
// supported.
func Decompress(blob []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecZip:
		return unzipFirst(blob)
	case CodecGzip:
		return gunzip(blob)
	default:
		return nil, fmt.Errorf("unsupported artifact codec %d", codec)
	}
}

func unzipFirst(blob []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("open zip artifact: %w", err)
	}

	if len(reader.File) == 0 {
		return nil, fmt.Errorf("zip artifact contains no entries")
	}

	entry, err := reader.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", reader.File[0].Name, err)
	}
	defer entry.Close()

	data, err := io.ReadAll(entry)
	if err != nil {
		return nil, fmt.Errorf("read zip entry %q: %w", reader.File[0].Name, err)
	}

	return data, nil
}

func gunzip(blob []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("open gzip artifact: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read gzip artifact: %w", err)
	}

	return data, nil
}
