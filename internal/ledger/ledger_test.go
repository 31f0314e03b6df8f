// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/pkg/types"
)

func TestLedger_WritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "download_results.csv")
	l, err := Create(path)
	require.NoError(t, err)

	outcomes := []types.RetrievalOutcome{
		{Title: "Deep Learning", Status: types.StatusSuccess, Method: "open-repository", SavePath: "papers/Deep Learning.pdf"},
		{Title: "Nonexistent, Paper", Status: types.StatusFailure, Error: "arxiv [not_found]: no matching entries", SavePath: "papers/Nonexistent, Paper.pdf"},
		{Title: "Existing", Status: types.StatusSkipped, Error: "file already exists", SavePath: "papers/Existing.pdf"},
	}
	for _, o := range outcomes {
		require.NoError(t, l.Record(o))
	}
	assert.Equal(t, 3, l.Rows())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\xEF\xBB\xBFtitle,status,method,error,save_path\n"))
	assert.Contains(t, string(data), `"Nonexistent, Paper",failure,`)

	got, err := ReadOutcomes(path)
	require.NoError(t, err)
	assert.Equal(t, outcomes, got)
}

func TestLedger_RowsVisibleBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	l, err := Create(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Record(types.RetrievalOutcome{Title: "A", Status: types.StatusSuccess, Method: "m"}))

	got, err := ReadOutcomes(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Title)
}

func TestLedger_CreateTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale contents\n"), 0o644))

	l, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	got, err := ReadOutcomes(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadOutcomes_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte("title,status\nA,success\n"), 0o644))
	_, err := ReadOutcomes(path)
	assert.ErrorContains(t, err, `missing column "method"`)
}

func TestReadTitles(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
		wantErr string
	}{
		{
			name:    "comma separated with BOM",
			file:    "titles.csv",
			content: "\xEF\xBB\xBFAuthors,Title,Year\nLeCun,Deep  Learning,2015\nX,,2020\nVaswani,\"Attention, Is All You Need\",2017\n",
			want:    []string{"Deep Learning", "Attention, Is All You Need"},
		},
		{
			name:    "tab separated export",
			file:    "savedrecs.txt",
			content: "PT\tAU\tTitle\tSO\nJ\tLeCun\t Deep Learning \tNature\nJ\tHe\tResidual Learning\tCVPR\n",
			want:    []string{"Deep Learning", "Residual Learning"},
		},
		{
			name:    "case-insensitive header",
			file:    "titles.tsv",
			content: "TITLE\nGraph Attention Networks\n",
			want:    []string{"Graph Attention Networks"},
		},
		{
			name:    "short rows skipped",
			file:    "titles.csv",
			content: "Id,Title\n1\n2,Kept\n",
			want:    []string{"Kept"},
		},
		{
			name:    "no title column",
			file:    "titles.csv",
			content: "Name,Year\nA,2020\n",
			wantErr: `no "Title" column`,
		},
		{
			name:    "empty file",
			file:    "titles.csv",
			content: "",
			wantErr: "reading input header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			got, err := ReadTitles(path)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadTitles_MissingFile(t *testing.T) {
	_, err := ReadTitles(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "opening input")
}

func TestTitleIndex_PrefersExactMatch(t *testing.T) {
	assert.Equal(t, 1, titleIndex([]string{"TITLE", "Title"}))
	assert.Equal(t, 0, titleIndex([]string{"title", "Year"}))
	assert.Equal(t, -1, titleIndex([]string{"Name"}))
}
