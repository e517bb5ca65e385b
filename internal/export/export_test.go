package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lox/medcast/internal/demand"
)

var table = demand.Table{
	Headers: []string{"Municipality", "Demand (units)"},
	Rows: [][]string{
		{"Oslo", "42"},
		{"Skien, Telemark", "17.5"},
	},
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("excel")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

func TestEncodeCSV(t *testing.T) {
	data, err := Encode(table, FormatCSV, "")
	require.NoError(t, err)
	assert.Equal(t, "Municipality,Demand (units)\nOslo,42\n\"Skien, Telemark\",17.5\n", string(data))
}

func TestEncodeXLSX(t *testing.T) {
	data, err := Encode(table, FormatXLSX, "Aspirin weekly")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Aspirin weekly")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, table.Headers, rows[0])
	assert.Equal(t, []string{"Skien, Telemark", "17.5"}, rows[2])
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	sink := FileSink{Dir: dir}

	path, err := sink.Put(context.Background(), "../medication-demand-aspirin-weekly-2025-01-20.csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "medication-demand-aspirin-weekly-2025-01-20.csv"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(got))
}
