// Package dataset reads deviation reports from spreadsheets and writes
// classified results back out.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one deviation report read from a sheet. Line is the 1-based
// spreadsheet row number.
type Row struct {
	Line        int
	Location    string
	Description *string
	AudioPath   string
}

func (r Row) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// ReadAudio loads the row's audio file. Relative paths resolve against
// baseDir. A row without audio returns nil.
func (r Row) ReadAudio(baseDir string) ([]byte, error) {
	if r.AudioPath == "" {
		return nil, nil
	}
	p := r.AudioPath
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("row %d: read audio: %w", r.Line, err)
	}
	return data, nil
}

type columns struct {
	location, description, audio int
}

// detectColumns finds the input columns by header name, accepting Portuguese
// and English headers.
func detectColumns(header []string) columns {
	c := columns{location: -1, description: -1, audio: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "audio") || strings.Contains(l, "áudio") || strings.Contains(l, "arquivo") || strings.Contains(l, "file"):
			if c.audio == -1 {
				c.audio = i
			}
		case strings.Contains(l, "local") || strings.Contains(l, "location") || strings.Contains(l, "setor") || strings.Contains(l, "site"):
			if c.location == -1 {
				c.location = i
			}
		case strings.Contains(l, "descri") || strings.Contains(l, "relato") || strings.Contains(l, "text"):
			if c.description == -1 {
				c.description = i
			}
		}
	}
	// fall back to the column order of the import template: local, description, audio
	if c.location == -1 && len(header) > 0 {
		c.location = 0
	}
	if c.description == -1 && len(header) > 1 && c.location != 1 && c.audio != 1 {
		c.description = 1
	}
	return c
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Load reads the first sheet of an .xlsx file. Rows with neither a
// description nor an audio path are skipped.
func Load(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	var out []Row
	for i, r := range rows[1:] {
		row := Row{
			Line:      i + 2,
			Location:  cell(r, cols.location),
			AudioPath: cell(r, cols.audio),
		}
		if d := cell(r, cols.description); d != "" {
			row.Description = &d
		}
		if row.Description == nil && row.AudioPath == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}
