package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each sheet as text. The first non-empty row is the header; every
// later row becomes "Header: value; Header: value" so a retrieved chunk keeps the column
// names (fee tables, timetables). A sheet with a single row is emitted as that row.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var header []string
		emitted := 0
		for _, row := range rows {
			if isBlankRow(row) {
				continue
			}
			if header == nil {
				header = row
				continue
			}
			if line := labelRow(header, row); line != "" {
				buf.WriteString(line)
				buf.WriteByte('\n')
				emitted++
			}
		}
		if header != nil && emitted == 0 {
			buf.WriteString(strings.Join(trimRow(header), "\t"))
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func labelRow(header, row []string) string {
	parts := make([]string, 0, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			parts = append(parts, strings.TrimSpace(header[i])+": "+cell)
		} else {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, "; ")
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimRow(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
