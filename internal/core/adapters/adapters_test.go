package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStaffColumn(t *testing.T) {
	accept := []string{"チェア1", "Dr鈴木", "DH田中", "衛生士A", "TC", "矯正", "TC/SP", "鈴木太郎", "佐藤"}
	for _, text := range accept {
		assert.Truef(t, IsStaffColumn(text), "expected %q to be a staff column", text)
	}

	reject := []string{"", "9:00", "AM", "PM", "本日", "2024年3月", "123", "診療", "予約", "«", "月"}
	for _, text := range reject {
		assert.Falsef(t, IsStaffColumn(text), "expected %q to be rejected", text)
	}
}

func TestIsEmptySlotCell(t *testing.T) {
	assert.True(t, IsEmptySlotCell(Cell{Text: "", Class: "", Style: ""}))
	assert.True(t, IsEmptySlotCell(Cell{Text: " ", Style: "background: #fff"}))
	assert.False(t, IsEmptySlotCell(Cell{Text: "予約済"}))
	assert.False(t, IsEmptySlotCell(Cell{Text: "", Colspan: 2}))
	assert.False(t, IsEmptySlotCell(Cell{Text: "", Class: "lunch-break"}))
	assert.False(t, IsEmptySlotCell(Cell{Text: "", Style: "background: red"}))
	assert.False(t, IsEmptySlotCell(Cell{Text: "", Style: "display:none"}))
}
