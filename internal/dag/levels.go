package dag

// Levels partitions an execution subset into parallel-safe groups. The
// subset induces a subgraph; each node's level is the length of its longest
// path from any subgraph root (nodes with no in-subset parent sit at level 0).
// Levels come back in ascending order, so level(u) < level(v) holds for every
// edge (u,v) inside the subset and nodes sharing a level share no edge.
//
// The subset must be in topological order, which every order produced by this
// package already is.
func (d *DAG) Levels(subset []string) [][]string {
	inSubset := make(map[string]bool, len(subset))
	for _, id := range subset {
		inSubset[id] = true
	}

	level := make(map[string]int, len(subset))
	maxLevel := 0
	for _, id := range subset {
		l := 0
		for _, p := range d.parents[id] {
			if !inSubset[p] {
				continue
			}
			if pl := level[p] + 1; pl > l {
				l = pl
			}
		}
		level[id] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	if len(subset) == 0 {
		return nil
	}
	groups := make([][]string, maxLevel+1)
	for _, id := range subset {
		groups[level[id]] = append(groups[level[id]], id)
	}
	return groups
}
