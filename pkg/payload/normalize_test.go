package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/pkg/models"
)

func TestNormalize(t *testing.T) {
	doc, err := Decode([]byte(`{"a": 1, "b": 1.5, "c": [true, null, "x"], "d": {"e": 7}}`))
	require.NoError(t, err)

	got := NormalizeDocument(doc)
	assert.Equal(t, map[string]interface{}{
		"a": int64(1),
		"b": 1.5,
		"c": []interface{}{true, nil, "x"},
		"d": map[string]interface{}{"e": int64(7)},
	}, got)
}

func TestNormalizeGoTypes(t *testing.T) {
	got := Normalize(map[string]interface{}{
		"ints":   []int{1, 2},
		"labels": map[string]string{"k": "v"},
		"f32":    float32(0.5),
	})
	assert.Equal(t, map[string]interface{}{
		"ints":   []interface{}{int64(1), int64(2)},
		"labels": map[string]interface{}{"k": "v"},
		"f32":    0.5,
	}, got)
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestNormalizeDocumentNil(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, NormalizeDocument(nil))
}

func TestResolveLabels(t *testing.T) {
	tests := []struct {
		name  string
		alert *models.AlertEnvelope
		want  map[string]string
	}{
		{
			name:  "nil alert",
			alert: nil,
			want:  map[string]string{},
		},
		{
			name: "explicit labels win",
			alert: &models.AlertEnvelope{
				Labels:  map[string]string{"severity": "critical"},
				Payload: map[string]interface{}{"labels": map[string]interface{}{"severity": "info"}},
			},
			want: map[string]string{"severity": "critical"},
		},
		{
			name: "grafana labels",
			alert: &models.AlertEnvelope{
				Payload: map[string]interface{}{"labels": map[string]interface{}{"severity": "warning", "replicas": 3, "nested": map[string]interface{}{}}},
			},
			want: map[string]string{"severity": "warning", "replicas": "3"},
		},
		{
			name: "alertmanager common labels",
			alert: &models.AlertEnvelope{
				Payload: map[string]interface{}{"commonLabels": map[string]interface{}{"team": "db", "paging": true}},
			},
			want: map[string]string{"team": "db", "paging": "true"},
		},
		{
			name:  "no labels",
			alert: &models.AlertEnvelope{Payload: map[string]interface{}{"title": "x"}},
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLabels(tt.alert))
		})
	}
}
