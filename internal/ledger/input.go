// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// TitleColumn is the header of the input column holding titles.
const TitleColumn = "Title"

// ReadTitles returns the non-empty titles of the Title column in input
// order, whitespace-normalized. Files ending in .tsv or .txt are
// tab-separated; everything else is comma-separated. An exact "Title"
// header is preferred over a case-insensitive match.
func ReadTitles(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(skipBOM(f))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".txt":
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading input header: %w", err)
	}
	col := titleIndex(header)
	if col < 0 {
		return nil, fmt.Errorf("input %s has no %q column", path, TitleColumn)
	}

	var titles []string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading input row: %w", err)
		}
		if col >= len(row) {
			continue
		}
		if t := types.NormalizeTitle(row[col]); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}

func titleIndex(header []string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == TitleColumn {
			return i
		}
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), TitleColumn) {
			return i
		}
	}
	return -1
}
