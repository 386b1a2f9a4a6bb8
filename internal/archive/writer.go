// Package archive implements the backbone's archival log: one JSON line
// per published envelope, rotated daily and gzip-compressed, replayable
// with `.gz` preferred over a same-day still-open `.json` file. It reads
// every envelope off the egress fan-out subject without round-tripping
// through it.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// line is the on-disk JSON shape for one archived envelope. It mirrors
// envelope.Envelope's wire field names directly rather than reusing the
// msgpack-tagged struct, since the archival format is plain JSON and the
// two on-wire representations are allowed to diverge.
type line struct {
	MsgType      string `json:"msg_type"`
	MsgTime      int64  `json:"msg_time"`
	Exchange     string `json:"exchange,omitempty"`
	Symbol       string `json:"symbol,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// Writer appends archived envelopes to a daily rotating, gzip-compressed
// JSON-lines file, ported from daily_gzip_json_writer.py. Write is safe
// for concurrent use; in normal operation it is called from a single
// archiver consumer loop.
type Writer struct {
	mu sync.Mutex

	directory string
	prefix    string

	currentDate string
	file        *os.File
	rawName     string
}

// NewWriter creates directory if needed and returns a Writer rooted at
// it. Files are named "<prefix>_<YYYY-MM-DD>.json" while open for
// writing, and gzip-compressed to "<prefix>_<YYYY-MM-DD>.json.gz" on
// rotation.
func NewWriter(directory, prefix string) (*Writer, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create directory %s: %w", directory, err)
	}
	return &Writer{directory: directory, prefix: prefix}, nil
}

// Write appends one envelope to the log, rotating to a new daily file if
// msgTimeNS falls on a different UTC date than the currently open file.
func (w *Writer) Write(msgType string, msgTimeNS int64, exchange, symbol, connectionID string, data any) error {
	if msgTimeNS == 0 {
		return fmt.Errorf("archive: msg_time is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	dt := time.Unix(0, msgTimeNS).UTC()
	date := dt.Format("2006-01-02")
	if w.currentDate != date {
		if err := w.rotate(date); err != nil {
			return err
		}
	}

	rec := line{
		MsgType:      msgType,
		MsgTime:      msgTimeNS,
		Exchange:     exchange,
		Symbol:       symbol,
		ConnectionID: connectionID,
		Data:         data,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: marshal line: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.file.Write(b); err != nil {
		return fmt.Errorf("archive: write line: %w", err)
	}
	return w.file.Sync()
}

func (w *Writer) filename(date string) string {
	return filepath.Join(w.directory, fmt.Sprintf("%s_%s.json", w.prefix, date))
}

// rotate closes and gzip-compresses the currently open file (if any),
// then opens a fresh one for date.
func (w *Writer) rotate(date string) error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("archive: close %s: %w", w.rawName, err)
		}
		if err := gzipAndRemove(w.rawName); err != nil {
			return err
		}
	}

	name := w.filename(date)
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", name, err)
	}
	w.file = f
	w.rawName = name
	w.currentDate = date
	return nil
}

func gzipAndRemove(rawName string) error {
	in, err := os.Open(rawName)
	if err != nil {
		return fmt.Errorf("archive: reopen %s for compression: %w", rawName, err)
	}
	defer in.Close()

	out, err := os.Create(rawName + ".gz")
	if err != nil {
		return fmt.Errorf("archive: create %s.gz: %w", rawName, err)
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		return fmt.Errorf("archive: compress %s: %w", rawName, err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return fmt.Errorf("archive: finalize %s.gz: %w", rawName, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("archive: close %s.gz: %w", rawName, err)
	}
	return os.Remove(rawName)
}

// Close flushes and gzip-compresses the currently open file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", w.rawName, err)
	}
	err := gzipAndRemove(w.rawName)
	w.file = nil
	return err
}
