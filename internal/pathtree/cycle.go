package pathtree

// inheritanceGraph maps class name -> classes it inherits from.
type inheritanceGraph map[string][]string

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are not cycles. Nodes are visited
// in sorted order so results are deterministic.
func tarjanSCC(graph inheritanceGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range sortedKeys(graph) {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside an SCC from its first member
// until it returns to it. A self-loop yields [c, c].
func reconstructCyclePath(scc []string, graph inheritanceGraph) []string {
	if len(scc) == 0 {
		return nil
	}
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		next := ""
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
