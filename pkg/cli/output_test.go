package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable_Basic(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"name", "status"}, [][]string{
		{"Stage_events", "success"},
		{"Load_user_dim_table", "upstream-failed"},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 3, "expected header + 2 data rows")
	assert.Equal(t, "NAME                 STATUS", lines[0])
	assert.Equal(t, "Stage_events         success", lines[1])
	assert.Equal(t, "Load_user_dim_table  upstream-failed", lines[2])
}

func TestPrintTable_EmptyColumns(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{}, [][]string{{"a"}})
	assert.Empty(t, buf.String(), "empty columns should produce no output")
}

func TestPrintTable_EmptyRows(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"id", "value"}, nil)
	assert.Equal(t, "ID  VALUE\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]string{"hello": "world"}))

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "world", parsed["hello"])
	assert.Contains(t, buf.String(), "\n  ")

	buf.Reset()
	require.NoError(t, PrintJSON(&buf, nil))
	assert.Equal(t, "null\n", buf.String())
}

func TestPrintDetail_SortedAndPadded(t *testing.T) {
	var buf bytes.Buffer
	PrintDetail(&buf, map[string]string{"status": "failed", "id": "r1", "error": ""})
	assert.Equal(t, "error:   -\nid:      r1\nstatus:  failed\n", buf.String())
}

func TestValidateOutputFormat(t *testing.T) {
	assert.NoError(t, validateOutputFormat("table"))
	assert.NoError(t, validateOutputFormat("json"))
	assert.NoError(t, validateOutputFormat(""))
	assert.Error(t, validateOutputFormat("yaml"))
}
