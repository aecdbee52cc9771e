// Package connections holds the pure helpers that compute a node's new
// connection list. None of them mutate their input.
package connections

// Append returns conns with target appended. Duplicates are kept, so
// drawing the same edge twice records it twice.
func Append[T comparable](conns []T, target T) []T {
	out := make([]T, len(conns), len(conns)+1)
	copy(out, conns)
	return append(out, target)
}

// AppendUnique appends target only if it is not already present. The
// result is always a fresh slice.
func AppendUnique[T comparable](conns []T, target T) []T {
	if Contains(conns, target) {
		return Clone(conns)
	}
	return Append(conns, target)
}

// Dedupe drops repeated entries, keeping the first occurrence of each.
func Dedupe[T comparable](conns []T) []T {
	seen := make(map[T]struct{}, len(conns))
	out := make([]T, 0, len(conns))
	for _, c := range conns {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Remove drops every occurrence of target.
func Remove[T comparable](conns []T, target T) []T {
	out := make([]T, 0, len(conns))
	for _, c := range conns {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether target is present.
func Contains[T comparable](conns []T, target T) bool {
	for _, c := range conns {
		if c == target {
			return true
		}
	}
	return false
}

// Clone copies conns. A nil input yields an empty, non-nil slice.
func Clone[T comparable](conns []T) []T {
	out := make([]T, len(conns))
	copy(out, conns)
	return out
}

// Equal compares two lists element by element, order included.
func Equal[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
