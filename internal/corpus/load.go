// Package corpus turns a tabular reference corpus into a published vector
// index and keeps it fresh when the source file changes.
package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// Columns names the CSV columns holding the document text and its id.
type Columns struct {
	Text   string
	Source string
}

// DefaultColumns matches the column names used by the reference datasets.
var DefaultColumns = Columns{Text: "text", Source: "source"}

// Row is one corpus record that survived cleaning.
type Row struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Report counts what cleaning removed.
type Report struct {
	Read            int
	MissingField    int
	DuplicateSource int
	Kept            int
}

// Load reads CSV with a header row. Rows missing text or source are dropped;
// of several rows sharing a source only the first is kept. Other columns
// become string metadata.
func Load(r io.Reader, cols Columns) ([]Row, Report, error) {
	var report Report
	if cols.Text == "" || cols.Source == "" {
		return nil, report, errors.New("corpus: text and source column names are required")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, report, errors.New("corpus: missing header row")
		}
		return nil, report, fmt.Errorf("corpus: read header: %w", err)
	}
	textCol, sourceCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case cols.Text:
			textCol = i
		case cols.Source:
			sourceCol = i
		}
	}
	if textCol < 0 {
		return nil, report, fmt.Errorf("corpus: no %q column in header", cols.Text)
	}
	if sourceCol < 0 {
		return nil, report, fmt.Errorf("corpus: no %q column in header", cols.Source)
	}

	var (
		rows []Row
		seen = make(map[string]struct{})
	)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("corpus: line %d: %w", report.Read+2, err)
		}
		report.Read++

		text, source := field(rec, textCol), field(rec, sourceCol)
		if text == "" || source == "" {
			report.MissingField++
			continue
		}
		if _, dup := seen[source]; dup {
			report.DuplicateSource++
			continue
		}
		seen[source] = struct{}{}

		row := Row{ID: source, Text: text}
		for i, h := range header {
			if i == textCol || i == sourceCol || i >= len(rec) {
				continue
			}
			if row.Metadata == nil {
				row.Metadata = make(map[string]any)
			}
			row.Metadata[strings.TrimSpace(h)] = rec[i]
		}
		rows = append(rows, row)
	}
	report.Kept = len(rows)
	return rows, report, nil
}

// LoadFile opens path on fs and loads it.
func LoadFile(fs afero.Fs, path string, cols Columns) ([]Row, Report, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, Report{}, fmt.Errorf("corpus: %w", err)
	}
	defer f.Close()
	return Load(f, cols)
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
