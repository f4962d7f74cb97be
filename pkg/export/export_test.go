package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Headers: []string{"Date", "Purpose"},
		Rows: [][]string{
			{"2025-03-03", "Career, planning"},
			{"2025-03-04", "Academic"},
		},
	}
}

func TestCSVExporterQuotesCells(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleTable())
	require.NoError(t, err)
	assert.Equal(t, "Date,Purpose\n2025-03-03,\"Career, planning\"\n2025-03-04,Academic\n", string(out))
}

func TestCSVExporterWritesHeaderForEmptyTable(t *testing.T) {
	table := sampleTable()
	table.Rows = nil

	out, err := NewCSVExporter().Render(table)
	require.NoError(t, err)
	assert.Equal(t, "Date,Purpose\n", string(out))
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	table := sampleTable()
	table.Rows = append(table.Rows, []string{"only one"})

	_, err := NewCSVExporter().Render(table)
	assert.Error(t, err)
	_, err = NewCSVExporter().Render(Table{})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "text/csv; charset=utf-8", f.ContentType())

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}
