package opgraph

// detectCycles checks the graph for dependency cycles using depth-first
// search with three-color marking: white nodes are unvisited, grey nodes
// are on the current recursion stack, black nodes are fully explored. A
// grey-to-grey edge is a back edge, so the grey chain between its endpoints
// is the cycle.
func (g *Graph) detectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	const (
		white = 0
		grey  = 1
		black = 2
	)

	color := make(map[string]int, len(g.ops))
	parent := make(map[string]string, len(g.ops))

	var cycle []string
	var visit func(key string) bool
	visit = func(key string) bool {
		color[key] = grey

		for next := range g.dependents[key] {
			switch color[next] {
			case white:
				parent[next] = key
				if visit(next) {
					return true
				}
			case grey:
				// Back edge: walk the parent chain from here back to the
				// re-entered node to name the cycle's members.
				cycle = append(cycle, next)
				for cur := key; cur != next && cur != ""; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, next)
				reverse(cycle)
				return true
			}
		}

		color[key] = black
		return false
	}

	for key := range g.ops {
		if color[key] == white {
			if visit(key) {
				return &CyclicDependencyError{Members: cycle}
			}
		}
	}

	return nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
