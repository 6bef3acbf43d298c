package bankroll

// disjointSet is a union-find structure over the indices 0..n-1, with path
// compression and union by rank.
type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	s := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range s.parent {
		s.parent[i] = i
	}
	return s
}

// find returns the representative of i's set.
func (s *disjointSet) find(i int) int {
	for s.parent[i] != i {
		s.parent[i] = s.parent[s.parent[i]]
		i = s.parent[i]
	}
	return i
}

// union merges the sets of i and j.
func (s *disjointSet) union(i, j int) {
	ri, rj := s.find(i), s.find(j)
	if ri == rj {
		return
	}
	switch {
	case s.rank[ri] < s.rank[rj]:
		s.parent[ri] = rj
	case s.rank[ri] > s.rank[rj]:
		s.parent[rj] = ri
	default:
		s.parent[rj] = ri
		s.rank[ri]++
	}
}

// sets returns the members of every set, each in ascending order, sets
// ordered by their smallest member.
func (s *disjointSet) sets() [][]int {
	index := make(map[int]int)
	var out [][]int
	for i := range s.parent {
		r := s.find(i)
		k, ok := index[r]
		if !ok {
			k = len(out)
			index[r] = k
			out = append(out, nil)
		}
		out[k] = append(out[k], i)
	}
	return out
}
