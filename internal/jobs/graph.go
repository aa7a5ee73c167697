package jobs

// depGraph tracks dependency edges as two derived indexes: parent ->
// children (who to unblock on completion) and child -> unresolved
// parents (who must finish first). Both are kept consistent on every
// mutation; a job with unresolved parents must never be enqueued.
type depGraph struct {
	children map[string]map[string]struct{}
	waiting  map[string]map[string]struct{}
}

func newDepGraph() *depGraph {
	return &depGraph{
		children: make(map[string]map[string]struct{}),
		waiting:  make(map[string]map[string]struct{}),
	}
}

// addEdge records that child cannot run until parent completes.
func (g *depGraph) addEdge(child, parent string) {
	if g.children[parent] == nil {
		g.children[parent] = make(map[string]struct{})
	}
	g.children[parent][child] = struct{}{}
	if g.waiting[child] == nil {
		g.waiting[child] = make(map[string]struct{})
	}
	g.waiting[child][parent] = struct{}{}
}

// ready reports whether the job has no unresolved parents.
func (g *depGraph) ready(id string) bool {
	return len(g.waiting[id]) == 0
}

// directChildren returns the ids directly depending on the parent.
func (g *depGraph) directChildren(parent string) []string {
	set := g.children[parent]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// satisfy marks the parent as completed and returns the children that
// became fully unblocked by it.
func (g *depGraph) satisfy(parent string) []string {
	var unblocked []string
	for child := range g.children[parent] {
		w := g.waiting[child]
		delete(w, parent)
		if len(w) == 0 {
			delete(g.waiting, child)
			unblocked = append(unblocked, child)
		}
	}
	delete(g.children, parent)
	return unblocked
}

// remove drops the job from both indexes without unblocking anyone.
// Used when a job is cancelled or cleaned up: its children keep the
// unresolved edge removed so they do not wait on a dead parent.
func (g *depGraph) remove(id string) {
	for child := range g.children[id] {
		if w := g.waiting[child]; w != nil {
			delete(w, id)
			if len(w) == 0 {
				delete(g.waiting, child)
			}
		}
	}
	delete(g.children, id)
	for parent := range g.waiting[id] {
		if c := g.children[parent]; c != nil {
			delete(c, id)
			if len(c) == 0 {
				delete(g.children, parent)
			}
		}
	}
	delete(g.waiting, id)
}

// waitingOn returns how many unresolved parents the job still has.
func (g *depGraph) waitingOn(id string) int {
	return len(g.waiting[id])
}
