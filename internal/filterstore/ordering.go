package filterstore

import (
	"fmt"
)

// The functions below operate on one owner's filters sorted by Order and
// return a freshly ranked slice. Backends load, apply and persist.

func splitDefault(filters []ChannelFilter) (rest []ChannelFilter, def *ChannelFilter) {
	rest = make([]ChannelFilter, 0, len(filters))
	for i := range filters {
		if filters[i].IsDefault {
			f := filters[i]
			def = &f
			continue
		}
		rest = append(rest, filters[i])
	}
	return rest, def
}

func clamp(index, n int) int {
	if index < 0 {
		return 0
	}
	if index > n {
		return n
	}
	return index
}

func rank(rest []ChannelFilter, def *ChannelFilter) []ChannelFilter {
	out := make([]ChannelFilter, 0, len(rest)+1)
	out = append(out, rest...)
	if def != nil {
		out = append(out, *def)
	}
	for i := range out {
		out[i].Order = i
	}
	return out
}

func applyInsert(filters []ChannelFilter, filter ChannelFilter, index int) ([]ChannelFilter, error) {
	if filter.IsDefault {
		return nil, ErrDefaultExists
	}
	rest, def := splitDefault(filters)
	index = clamp(index, len(rest))

	rest = append(rest, ChannelFilter{})
	copy(rest[index+1:], rest[index:])
	rest[index] = filter
	return rank(rest, def), nil
}

func applyMove(filters []ChannelFilter, filterID string, index int) ([]ChannelFilter, error) {
	rest, def := splitDefault(filters)
	if def != nil && def.ID == filterID {
		return nil, ErrCannotMoveDefault
	}

	from := -1
	for i := range rest {
		if rest[i].ID == filterID {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, ErrNotFound
	}

	moved := rest[from]
	rest = append(rest[:from], rest[from+1:]...)
	index = clamp(index, len(rest))
	rest = append(rest, ChannelFilter{})
	copy(rest[index+1:], rest[index:])
	rest[index] = moved
	return rank(rest, def), nil
}

func applyRemove(filters []ChannelFilter, filterID string) ([]ChannelFilter, error) {
	rest, def := splitDefault(filters)
	if def != nil && def.ID == filterID {
		return nil, ErrCannotRemoveDefault
	}
	for i := range rest {
		if rest[i].ID == filterID {
			rest = append(rest[:i], rest[i+1:]...)
			return rank(rest, def), nil
		}
	}
	return nil, ErrNotFound
}

// CheckOrdering verifies the ranking invariant: orders are 0..N-1 in slice
// order and exactly one default filter sits last.
func CheckOrdering(filters []ChannelFilter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: no filters", ErrInvalidOrdering)
	}
	defaults := 0
	for i, f := range filters {
		if f.Order != i {
			return fmt.Errorf("%w: filter %s has order %d at position %d", ErrInvalidOrdering, f.ID, f.Order, i)
		}
		if f.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		return fmt.Errorf("%w: %d default filters", ErrInvalidOrdering, defaults)
	}
	if !filters[len(filters)-1].IsDefault {
		return fmt.Errorf("%w: default filter is not last", ErrInvalidOrdering)
	}
	return nil
}

// changedOrders returns the filters whose Order differs from before.
func changedOrders(before, after []ChannelFilter) []ChannelFilter {
	prev := make(map[string]int, len(before))
	for _, f := range before {
		prev[f.ID] = f.Order
	}
	var changed []ChannelFilter
	for _, f := range after {
		if order, ok := prev[f.ID]; ok && order != f.Order {
			changed = append(changed, f)
		}
	}
	return changed
}
