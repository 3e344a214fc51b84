package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadTable_CSV(t *testing.T) {
	input := "external_id,name,lat,lon\nD1,Main&1st,55.75,37.62\nD2,Main&2nd,55.76,37.63\n"

	rows, err := ReadTable("detectors.csv", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"D1", "Main&1st", "55.75", "37.62"}, rows[1])
}

func TestReadTable_CSVHeterogeneousColumns(t *testing.T) {
	input := "a,b,c,d\nD1,Name,1.0,2.0\nOnly&Name,1.0,2.0\n"

	rows, err := ReadTable("mixed.csv", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Len(t, rows[1], 4)
	assert.Len(t, rows[2], 3)
}

func TestReadTable_XLSX(t *testing.T) {
	file := excelize.NewFile()
	require.NoError(t, file.SetSheetRow("Sheet1", "A1", &[]interface{}{"external_id", "name", "lat", "lon"}))
	require.NoError(t, file.SetSheetRow("Sheet1", "A2", &[]interface{}{"D1", "Main&1st", "55.75", "37.62"}))

	buf, err := file.WriteToBuffer()
	require.NoError(t, err)

	rows, err := ReadTable("detectors.xlsx", buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "D1", rows[1][0])
}

func TestReadTable_UnsupportedExtension(t *testing.T) {
	_, err := ReadTable("detectors.pdf", strings.NewReader("whatever"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadTable_FatalCSVError(t *testing.T) {
	// Unterminated quote cannot be decoded at all.
	_, err := ReadTable("broken.csv", strings.NewReader("a,b\n\"unterminated,1\nx,2\n"))
	assert.Error(t, err)
}

func TestReadTable_FatalXLSXError(t *testing.T) {
	_, err := ReadTable("broken.xlsx", strings.NewReader("this is not a zip archive"))
	assert.Error(t, err)
}
