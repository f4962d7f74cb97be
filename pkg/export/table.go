package export

import "fmt"

// Format names a rendered document type.
type Format string

const FormatCSV Format = "csv"

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	return "text/csv; charset=utf-8"
}

// ParseFormat accepts "csv"; empty means csv.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", raw)
}

// Table is an ordered grid of cells. Every row has one cell per header.
type Table struct {
	Headers []string
	Rows    [][]string
}

func (t Table) validate() error {
	if len(t.Headers) == 0 {
		return fmt.Errorf("table requires at least one column")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Headers))
		}
	}
	return nil
}
