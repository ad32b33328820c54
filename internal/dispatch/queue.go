package dispatch

// Queue is the FIFO of waiting customer ids. Arrival order is the only ordering
// rule; there are no priority tiers.
type Queue struct {
	ids []string
}

// PositionChange tells a customer its new 1-based queue position.
type PositionChange struct {
	CustomerID string
	Position   int
}

func NewQueue() *Queue { return &Queue{} }

// Enqueue appends id to the tail and returns its 1-based position.
func (q *Queue) Enqueue(id string) int {
	q.ids = append(q.ids, id)
	return len(q.ids)
}

// DequeueHead removes and returns the first id. Accepting a call removes the
// customer by id with Remove instead, since an agent may accept any waiting customer.
func (q *Queue) DequeueHead() (string, error) {
	if len(q.ids) == 0 {
		return "", ErrEmpty
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, nil
}

// Head returns the first id without removing it.
func (q *Queue) Head() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	return q.ids[0], true
}

// Remove deletes id wherever it is. It returns the new positions of every entry
// that was behind it, which the caller must announce. Removing an absent id
// is a no-op and returns (nil, false).
func (q *Queue) Remove(id string) ([]PositionChange, bool) {
	idx := q.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	q.ids = append(q.ids[:idx], q.ids[idx+1:]...)

	changes := make([]PositionChange, 0, len(q.ids)-idx)
	for i := idx; i < len(q.ids); i++ {
		changes = append(changes, PositionChange{CustomerID: q.ids[i], Position: i + 1})
	}
	return changes, true
}

// Position returns the 1-based position of id, or 0 if it is not queued.
func (q *Queue) Position(id string) int {
	return q.indexOf(id) + 1
}

func (q *Queue) Len() int { return len(q.ids) }

// IDs returns a copy of the queued ids in order.
func (q *Queue) IDs() []string {
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}

func (q *Queue) indexOf(id string) int {
	for i, v := range q.ids {
		if v == id {
			return i
		}
	}
	return -1
}
