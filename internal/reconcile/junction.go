package reconcile

// JunctionDiff is the full result of comparing junction rows with a desired
// child set.
type JunctionDiff[J, C any] struct {
	Remove   []J
	Add      []C
	Existing []C

	// Duplicate holds extra junctions for an already associated child.
	// Deleting Remove and Duplicate and inserting Add leaves exactly one
	// junction per desired child.
	Duplicate []J
}

// GetRemoveItems returns the junctions that match no desired child.
func GetRemoveItems[J, C any](junctions []J, children []C, match func(J, C) bool) []J {
	out := []J{}
	for _, j := range junctions {
		if !anyChild(j, children, match) {
			out = append(out, j)
		}
	}
	return out
}

// GetAddItems returns the desired children that no junction matches.
func GetAddItems[J, C any](junctions []J, children []C, match func(J, C) bool) []C {
	out := []C{}
	for _, c := range children {
		if !anyJunction(junctions, c, match) {
			out = append(out, c)
		}
	}
	return out
}

// GetExistingItems returns the desired children already associated.
// It is the complement of GetAddItems within children.
func GetExistingItems[J, C any](junctions []J, children []C, match func(J, C) bool) []C {
	out := []C{}
	for _, c := range children {
		if anyJunction(junctions, c, match) {
			out = append(out, c)
		}
	}
	return out
}

// GetDuplicateItems returns junctions whose child is already matched by an
// earlier junction. Removing them leaves at most one junction per child.
func GetDuplicateItems[J, C any](junctions []J, children []C, match func(J, C) bool) []J {
	out := []J{}
	claimed := make([]bool, len(children))
	for _, j := range junctions {
		for i, c := range children {
			if !match(j, c) {
				continue
			}
			if claimed[i] {
				out = append(out, j)
			} else {
				claimed[i] = true
			}
			break
		}
	}
	return out
}

// Diff computes remove, add and existing sets in one call.
func Diff[J, C any](junctions []J, children []C, match func(J, C) bool) JunctionDiff[J, C] {
	return JunctionDiff[J, C]{
		Remove:    GetRemoveItems(junctions, children, match),
		Add:       GetAddItems(junctions, children, match),
		Existing:  GetExistingItems(junctions, children, match),
		Duplicate: GetDuplicateItems(junctions, children, match),
	}
}

func anyChild[J, C any](j J, children []C, match func(J, C) bool) bool {
	for _, c := range children {
		if match(j, c) {
			return true
		}
	}
	return false
}

func anyJunction[J, C any](junctions []J, c C, match func(J, C) bool) bool {
	for _, j := range junctions {
		if match(j, c) {
			return true
		}
	}
	return false
}
