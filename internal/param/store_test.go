package param

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentKey(t *testing.T) {
	tests := map[string]string{
		"FMS":     "param::FMS",
		"CONTROL": "param::CONTROL",
		"":        "param::",
	}
	for group, want := range tests {
		assert.Equal(t, want, DocumentKey(group))
	}
}

func TestDocumentMerge(t *testing.T) {
	at := time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	later := at.Add(time.Hour)

	tests := []struct {
		name   string
		stored Document
		values map[string]float32
		want   map[string]float32
	}{
		{
			name:   "overwrites and keeps",
			stored: newDocument("FMS", map[string]float32{"XY_P": 0.95, "Z_P": 1}, at),
			values: map[string]float32{"XY_P": 1.2, "YAW_P": 0.5},
			want:   map[string]float32{"XY_P": 1.2, "Z_P": 1, "YAW_P": 0.5},
		},
		{
			name:   "document without values",
			stored: Document{ID: DocumentKey("CONTROL"), Group: "CONTROL"},
			values: map[string]float32{"ROLL_P": 7},
			want:   map[string]float32{"ROLL_P": 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tt.stored
			doc.merge(tt.values, later)
			assert.Equal(t, tt.want, doc.Values)
			assert.True(t, later.Equal(doc.UpdatedAt))
			assert.Equal(t, time.UTC, doc.UpdatedAt.Location())
		})
	}
}

func TestDocumentJSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := newDocument("FMS", map[string]float32{"XY_P": 0.95}, at)
	assert.Equal(t, "param::FMS", doc.ID)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"param::FMS","group":"FMS","values":{"XY_P":0.95},"updatedAt":"2024-05-01T12:00:00Z"}`, string(raw))

	var stored Document
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, doc.Values, stored.Values)
	assert.Equal(t, "FMS", stored.Group)
}
