package connection

// sequenceTracker records, per topic key, the highest event sequence number
// observed and which topics have a missed-events recovery request in flight.
type sequenceTracker struct {
	last       map[string]int64
	recovering map[string]struct{}
}

func newSequenceTracker() *sequenceTracker {
	return &sequenceTracker{
		last:       make(map[string]int64),
		recovering: make(map[string]struct{}),
	}
}

// observe records seq for topic and reports whether it opened a gap against
// the previously seen sequence. since is the last-seen value before the gap.
// The tracker is updated unconditionally, so a later duplicate or lower
// sequence does not re-trigger recovery.
func (t *sequenceTracker) observe(topic string, seq int64) (gap bool, since int64) {
	prev, seen := t.last[topic]
	t.last[topic] = seq
	if !seen {
		return false, 0
	}
	if seq > prev+1 {
		return true, prev
	}
	return false, 0
}

// beginRecovery marks topic as recovering. It reports false if a recovery
// request is already outstanding for the topic.
func (t *sequenceTracker) beginRecovery(topic string) bool {
	if _, ok := t.recovering[topic]; ok {
		return false
	}
	t.recovering[topic] = struct{}{}
	return true
}

// endRecovery clears the topic's recovery marker.
func (t *sequenceTracker) endRecovery(topic string) {
	delete(t.recovering, topic)
}

// lastSeen returns the highest sequence observed for topic.
func (t *sequenceTracker) lastSeen(topic string) (int64, bool) {
	seq, ok := t.last[topic]
	return seq, ok
}

// clearRecovery drops every outstanding recovery marker.
func (t *sequenceTracker) clearRecovery() {
	t.recovering = make(map[string]struct{})
}
