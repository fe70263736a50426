package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastColumn(t *testing.T) {
	cols, err := Columns(TableBookings)
	assert.NoError(t, err)
	assert.Equal(t, "H", lastColumn(cols))

	cols, err = Columns(TableLabs)
	assert.NoError(t, err)
	assert.Equal(t, "A", lastColumn(cols))
}

func TestDataRange(t *testing.T) {
	s := &Sheets{}
	cols, _ := Columns(TableWater)
	assert.Equal(t, "water!A2:D", s.dataRange(TableWater, cols))
}

func TestToValuesPadsShortRows(t *testing.T) {
	values := toValues([][]string{
		{"a", "b"},
		{"c"},
	}, 3)

	assert.Equal(t, [][]interface{}{
		{"a", "b", ""},
		{"c", "", ""},
	}, values)
}
