package testHelper

// GroupBy buckets elements by the key keySelector returns for them.
func GroupBy[T comparable, V any](elements []V, keySelector func(V) T) map[T][]V {
	destination := make(map[T][]V)
	for _, element := range elements {
		key := keySelector(element)
		destination[key] = append(destination[key], element)
	}

	return destination
}

// Partition splits elements in two, those matching predicate first and the rest second.
func Partition[V any](elements []V, predicate func(V) bool) ([]V, []V) {
	var matched []V
	var rest []V
	for _, element := range elements {
		if predicate(element) {
			matched = append(matched, element)
		} else {
			rest = append(rest, element)
		}
	}

	return matched, rest
}
