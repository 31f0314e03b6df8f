// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger reads the title list for a batch and writes the per-title
// results CSV. Both files carry an optional UTF-8 byte order mark so they
// open cleanly in spreadsheet tools.
package ledger

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// Header is the column layout of the results ledger.
var Header = []string{"title", "status", "method", "error", "save_path"}

var bom = []byte{0xEF, 0xBB, 0xBF}

// Ledger appends outcomes to a CSV file. Every row is flushed and synced
// before Record returns, so rows survive an abrupt exit.
type Ledger struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	rows int
}

// Create truncates or creates the ledger at path and writes the header.
func Create(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating ledger: %w", err)
	}
	if _, err := f.Write(bom); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing ledger header: %w", err)
	}

	l := &Ledger{f: f, w: csv.NewWriter(f)}
	if err := l.write(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing ledger header: %w", err)
	}
	return l, nil
}

// Record appends one outcome.
func (l *Ledger) Record(o types.RetrievalOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write([]string{o.Title, string(o.Status), o.Method, o.Error, o.SavePath}); err != nil {
		return fmt.Errorf("recording %q: %w", o.Title, err)
	}
	l.rows++
	return nil
}

// Rows returns the number of outcomes recorded.
func (l *Ledger) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

func (l *Ledger) write(row []string) error {
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	return l.f.Sync()
}

// Close flushes and closes the file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return errors.Join(l.w.Error(), l.f.Close())
}

// ReadOutcomes loads a ledger written by Create and Record.
func ReadOutcomes(path string) ([]types.RetrievalOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(skipBOM(f))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading ledger header: %w", err)
	}
	idx := columnIndex(header)
	for _, col := range Header {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("ledger %s: missing column %q", path, col)
		}
	}

	var out []types.RetrievalOutcome
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ledger row: %w", err)
		}
		out = append(out, types.RetrievalOutcome{
			Title:    row[idx["title"]],
			Status:   types.Status(row[idx["status"]]),
			Method:   row[idx["method"]],
			Error:    row[idx["error"]],
			SavePath: row[idx["save_path"]],
		})
	}
	return out, nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) *bufio.Reader {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(3); len(head) == 3 && head[0] == bom[0] && head[1] == bom[1] && head[2] == bom[2] {
		br.Discard(3)
	}
	return br
}
