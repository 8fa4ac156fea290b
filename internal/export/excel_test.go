package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rmanoh01/neurobooth-analysis-tools/internal/frame"
)

func demographicTable(t *testing.T) *frame.Frame {
	t.Helper()
	table, err := frame.New([]string{"subject_id", "neurobooth_visit_dates", "demographic_offset_days"})
	require.NoError(t, err)
	require.NoError(t, table.AppendRow(frame.Row{
		"100001",
		time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC),
		float64(-2),
	}))
	require.NoError(t, table.AppendRow(frame.Row{"100002", nil, nil}))
	return table
}

func TestFrameToExcel(t *testing.T) {
	data, err := FrameToExcel(demographicTable(t), "demographic")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"demographic"}, f.GetSheetList())

	header, err := f.GetCellValue("demographic", "A1")
	require.NoError(t, err)
	assert.Equal(t, "subject_id", header)

	id, err := f.GetCellValue("demographic", "A2")
	require.NoError(t, err)
	assert.Equal(t, "100001", id)

	visit, err := f.GetCellValue("demographic", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2021-01-10 00:00:00", visit)

	// NULLs stay blank.
	empty, err := f.GetCellValue("demographic", "B3")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestWriteFrameFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demographic.xlsx")
	require.NoError(t, WriteFrameFile(demographicTable(t), "demographic", path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFrameToExcel_EmptyTable(t *testing.T) {
	table, err := frame.New([]string{"subject_id"})
	require.NoError(t, err)

	data, err := FrameToExcel(table, "subject")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("subject", "A1")
	require.NoError(t, err)
	assert.Equal(t, "subject_id", header)
}
