package ledger

// pendingQueue is a FIFO of job ids in submission order. It is not safe
// for concurrent use; the Ledger guards it with its own lock.
type pendingQueue struct {
	ids  []string
	head int
}

func (q *pendingQueue) Push(id string) {
	q.ids = append(q.ids, id)
}

// Pop removes and returns the oldest id, or false if the queue is empty.
func (q *pendingQueue) Pop() (string, bool) {
	if q.head >= len(q.ids) {
		return "", false
	}
	id := q.ids[q.head]
	q.ids[q.head] = ""
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head > 64 && q.head*2 >= len(q.ids) {
		n := copy(q.ids, q.ids[q.head:])
		q.ids = q.ids[:n]
		q.head = 0
	}
	return id, true
}

func (q *pendingQueue) Len() int { return len(q.ids) - q.head }
