package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntity struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

func TestDecodeRow(t *testing.T) {
	created := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	row := Row{
		"id":         "e1",
		"title":      "Pottery class",
		"count":      float64(3),
		"created_at": Timestamp(created),
	}

	var got testEntity
	require.NoError(t, DecodeRow("experiences", row, &got))
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, "Pottery class", got.Title)
	assert.Equal(t, 3, got.Count)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestDecodeRowTypeMismatch(t *testing.T) {
	var got testEntity
	err := DecodeRow("experiences", Row{"count": "three"}, &got)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "experiences", decodeErr.Table)
}

func TestDecodeRowsFailsOnFirstBadRow(t *testing.T) {
	rows := []Row{
		{"id": "a", "count": float64(1)},
		{"id": "b", "count": "broken"},
	}
	got, err := DecodeRows[testEntity]("experiences", rows)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestEncodeRowRoundTrip(t *testing.T) {
	entity := testEntity{ID: "e2", Title: "Kayak tour", Count: 2}
	row, err := EncodeRow(entity)
	require.NoError(t, err)
	assert.Equal(t, "e2", row["id"])
	assert.Equal(t, "Kayak tour", row["title"])
	assert.Equal(t, float64(2), row["count"])
}

func TestTimestampStringOrderMatchesTimeOrder(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	// Sub-second fractions are where variable-width formats break string
	// ordering; the fixed-width layout must not.
	times := []time.Time{
		base.Add(5 * time.Nanosecond),
		base.Add(500 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + 20*time.Nanosecond),
	}
	for i := 1; i < len(times); i++ {
		a, b := Timestamp(times[i-1]), Timestamp(times[i])
		assert.Less(t, a, b)
	}
}
