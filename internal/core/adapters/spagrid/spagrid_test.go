package spagrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortDisplayName(t *testing.T) {
	assert.Equal(t, "サンプル歯科", shortDisplayName("サンプル歯科・本院（歯科）"))
	assert.Equal(t, "プレーン", shortDisplayName("プレーン"))
}

func TestParseRowTime(t *testing.T) {
	m, ok := parseRowTime("9:00")
	assert.True(t, ok)
	assert.Equal(t, 540, m)

	m, ok = parseRowTime("9:15\nextra")
	assert.True(t, ok)
	assert.Equal(t, 555, m)

	_, ok = parseRowTime("not-a-time")
	assert.False(t, ok)
}

func TestSelectStaffTable(t *testing.T) {
	tables := []rawTable{
		{Headers: []string{"予約日", "AM"}, Rows: make([][]rawCell, 12)},
		{Headers: []string{"時間", "チェア1", "鈴木"}, Rows: make([][]rawCell, 12)},
	}
	got, ok := selectStaffTable(tables)
	assert.True(t, ok)
	assert.Equal(t, []string{"時間", "チェア1", "鈴木"}, got.Headers)
}

func TestSelectStaffTable_RejectsShortTables(t *testing.T) {
	tables := []rawTable{
		{Headers: []string{"チェア1"}, Rows: make([][]rawCell, 3)},
	}
	_, ok := selectStaffTable(tables)
	assert.False(t, ok)
}
