package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Record is one archived envelope as read back from the log.
type Record struct {
	MsgType      string
	MsgTime      int64
	Exchange     string
	Symbol       string
	ConnectionID string
	Data         json.RawMessage
}

// Reader replays archived envelopes whose msg_time falls within
// [startNS, endNS], ported from daily_gzip_json_reader.py. A `.gz` file
// is preferred over a same-day `.json` file that may still be open for
// writing by a live Writer.
type Reader struct {
	directory string
	prefix    string
}

// NewReader returns a Reader rooted at directory.
func NewReader(directory, prefix string) *Reader {
	return &Reader{directory: directory, prefix: prefix}
}

// Read calls fn for every record in [startNS, endNS], across every daily
// file the range spans, in file (and therefore time) order. It stops and
// returns fn's error if fn returns non-nil.
func (r *Reader) Read(startNS, endNS int64, fn func(Record) error) error {
	start := time.Unix(0, startNS).UTC().Truncate(24 * time.Hour)
	end := time.Unix(0, endNS).UTC()

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		filename, ok := r.resolve(d)
		if !ok {
			continue
		}
		if err := r.readFile(filename, startNS, endNS, fn); err != nil {
			return err
		}
	}
	return nil
}

// resolve returns the archive file for date, preferring the gzip-rotated
// form.
func (r *Reader) resolve(date time.Time) (string, bool) {
	base := filepath.Join(r.directory, fmt.Sprintf("%s_%s.json", r.prefix, date.Format("2006-01-02")))
	if _, err := os.Stat(base + ".gz"); err == nil {
		return base + ".gz", true
	}
	if _, err := os.Stat(base); err == nil {
		return base, true
	}
	return "", false
}

func (r *Reader) readFile(filename string, startNS, endNS int64, fn func(Record) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", filename, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if filepath.Ext(filename) == ".gz" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("archive: open gzip reader for %s: %w", filename, err)
		}
		defer gz.Close()
		reader = gz
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var rec line
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("archive: parse line in %s: %w", filename, err)
		}
		if rec.MsgTime < startNS || rec.MsgTime > endNS {
			continue
		}
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("archive: re-marshal data in %s: %w", filename, err)
		}
		if err := fn(Record{
			MsgType:      rec.MsgType,
			MsgTime:      rec.MsgTime,
			Exchange:     rec.Exchange,
			Symbol:       rec.Symbol,
			ConnectionID: rec.ConnectionID,
			Data:         data,
		}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
