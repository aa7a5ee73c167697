package jobs

// runQueue holds runnable job ids ordered by priority band, FIFO
// within a band. A job id appears at most once; double-push is a
// silent no-op so defensive re-enqueues stay cheap.
type runQueue struct {
	bands  [3][]string
	member map[string]struct{}
}

func newRunQueue() *runQueue {
	return &runQueue{member: make(map[string]struct{})}
}

func (q *runQueue) len() int {
	return len(q.member)
}

func (q *runQueue) contains(id string) bool {
	_, ok := q.member[id]
	return ok
}

// push appends the id to the back of its priority band.
func (q *runQueue) push(id string, p Priority) bool {
	if _, ok := q.member[id]; ok {
		return false
	}
	r := p.rank()
	q.bands[r] = append(q.bands[r], id)
	q.member[id] = struct{}{}
	return true
}

// pop removes and returns the next id: highest priority band first,
// FIFO within the band. Returns "" when empty.
func (q *runQueue) pop() string {
	for r := range q.bands {
		if len(q.bands[r]) == 0 {
			continue
		}
		id := q.bands[r][0]
		q.bands[r] = q.bands[r][1:]
		delete(q.member, id)
		return id
	}
	return ""
}

// remove drops the id from whatever band holds it. Returns whether it
// was queued.
func (q *runQueue) remove(id string) bool {
	if _, ok := q.member[id]; !ok {
		return false
	}
	delete(q.member, id)
	for r := range q.bands {
		for i, v := range q.bands[r] {
			if v == id {
				q.bands[r] = append(q.bands[r][:i], q.bands[r][i+1:]...)
				return true
			}
		}
	}
	return true
}
