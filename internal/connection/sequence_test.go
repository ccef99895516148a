package connection

import "testing"

func TestSequenceContiguous(t *testing.T) {
	tr := newSequenceTracker()

	for seq := int64(1); seq <= 3; seq++ {
		if gap, _ := tr.observe("2025-01-02", seq); gap {
			t.Errorf("unexpected gap at seq %d", seq)
		}
	}
}

func TestSequenceGap(t *testing.T) {
	tr := newSequenceTracker()

	tr.observe("2025-01-02", 1)
	tr.observe("2025-01-02", 2)

	gap, since := tr.observe("2025-01-02", 4)
	if !gap {
		t.Fatal("expected gap for 2 -> 4")
	}
	if since != 2 {
		t.Errorf("since = %d, want 2", since)
	}

	// Last-seen advances to the received value regardless of the gap.
	if last, _ := tr.lastSeen("2025-01-02"); last != 4 {
		t.Errorf("lastSeen = %d, want 4", last)
	}

	// 5 is contiguous with 4 now.
	if gap, _ := tr.observe("2025-01-02", 5); gap {
		t.Error("unexpected gap after tracker advanced")
	}
}

func TestSequenceFirstObservationIsNotAGap(t *testing.T) {
	tr := newSequenceTracker()

	if gap, _ := tr.observe("2025-01-02", 40); gap {
		t.Error("first observation must not be a gap")
	}
}

func TestSequenceTopicsAreIndependent(t *testing.T) {
	tr := newSequenceTracker()

	tr.observe("2025-01-02", 5)
	if gap, _ := tr.observe("2025-01-03", 1); gap {
		t.Error("topics must track independently")
	}
}

func TestSequenceRecoveryDedup(t *testing.T) {
	tr := newSequenceTracker()

	if !tr.beginRecovery("2025-01-02") {
		t.Fatal("first beginRecovery should succeed")
	}
	if tr.beginRecovery("2025-01-02") {
		t.Error("second beginRecovery should be blocked while in flight")
	}

	tr.endRecovery("2025-01-02")
	if !tr.beginRecovery("2025-01-02") {
		t.Error("beginRecovery should succeed again after endRecovery")
	}
}
