// Package snapshot holds the flat key/value view of collected signals.
package snapshot

import "sort"

// Snapshot maps a signal key (e.g. "System_model_name") to its value.
// Keys are unique; iteration order carries no meaning.
type Snapshot map[string]string

// Keys returns the keys in lexicographic order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the values ordered by their sorted keys.
func (s Snapshot) Values() []string {
	keys := s.Keys()
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = s[k]
	}
	return values
}

// Clone returns a copy that shares nothing with s. A nil snapshot clones to nil.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Equal reports whether both snapshots hold the same pairs.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

