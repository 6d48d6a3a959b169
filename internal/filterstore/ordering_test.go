package filterstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranked(ids ...string) []ChannelFilter {
	out := make([]ChannelFilter, 0, len(ids)+1)
	for i, id := range ids {
		out = append(out, ChannelFilter{ID: id, Order: i})
	}
	return append(out, ChannelFilter{ID: "default", Order: len(ids), IsDefault: true})
}

func ids(filters []ChannelFilter) []string {
	out := make([]string, len(filters))
	for i, f := range filters {
		out[i] = f.ID
	}
	return out
}

func TestApplyInsert(t *testing.T) {
	tests := []struct {
		name  string
		index int
		want  []string
	}{
		{name: "front", index: 0, want: []string{"new", "a", "b", "default"}},
		{name: "middle", index: 1, want: []string{"a", "new", "b", "default"}},
		{name: "end stays ahead of default", index: 2, want: []string{"a", "b", "new", "default"}},
		{name: "clamped high", index: 99, want: []string{"a", "b", "new", "default"}},
		{name: "clamped low", index: -3, want: []string{"new", "a", "b", "default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyInsert(ranked("a", "b"), ChannelFilter{ID: "new"}, tt.index)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
			assert.NoError(t, CheckOrdering(got))
		})
	}
}

func TestApplyInsertRejectsSecondDefault(t *testing.T) {
	_, err := applyInsert(ranked("a"), ChannelFilter{ID: "x", IsDefault: true}, 0)
	assert.ErrorIs(t, err, ErrDefaultExists)
}

func TestApplyMove(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		index int
		want  []string
	}{
		{name: "to front", id: "c", index: 0, want: []string{"c", "a", "b", "default"}},
		{name: "to back", id: "a", index: 2, want: []string{"b", "c", "a", "default"}},
		{name: "clamped past default", id: "a", index: 10, want: []string{"b", "c", "a", "default"}},
		{name: "same position", id: "b", index: 1, want: []string{"a", "b", "c", "default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyMove(ranked("a", "b", "c"), tt.id, tt.index)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
			assert.NoError(t, CheckOrdering(got))
		})
	}
}

func TestApplyMoveErrors(t *testing.T) {
	_, err := applyMove(ranked("a"), "default", 0)
	assert.ErrorIs(t, err, ErrCannotMoveDefault)

	_, err = applyMove(ranked("a"), "missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyRemove(t *testing.T) {
	got, err := applyRemove(ranked("a", "b", "c"), "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "default"}, ids(got))
	assert.NoError(t, CheckOrdering(got))

	_, err = applyRemove(ranked("a"), "default")
	assert.ErrorIs(t, err, ErrCannotRemoveDefault)

	_, err = applyRemove(ranked("a"), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckOrdering(t *testing.T) {
	assert.NoError(t, CheckOrdering(ranked("a", "b")))
	assert.ErrorIs(t, CheckOrdering(nil), ErrInvalidOrdering)

	gapped := ranked("a", "b")
	gapped[1].Order = 5
	assert.ErrorIs(t, CheckOrdering(gapped), ErrInvalidOrdering)

	noDefault := []ChannelFilter{{ID: "a", Order: 0}}
	assert.ErrorIs(t, CheckOrdering(noDefault), ErrInvalidOrdering)

	defaultFirst := []ChannelFilter{{ID: "d", Order: 0, IsDefault: true}, {ID: "a", Order: 1}}
	assert.ErrorIs(t, CheckOrdering(defaultFirst), ErrInvalidOrdering)
}

func TestChangedOrders(t *testing.T) {
	before := ranked("a", "b", "c")
	after, err := applyMove(before, "c", 1)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"c", "b"}, ids(changedOrders(before, after)))
}
