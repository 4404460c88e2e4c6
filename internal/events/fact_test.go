package events

import "testing"

func TestQueue_DrainSwapsBuffers(t *testing.T) {
	var q Queue
	q.Publish(Fact{Kind: Attack, Tick: 1})
	q.Publish(Fact{Kind: Theft, Tick: 1})

	batch := q.Drain()
	if len(batch) != 2 || batch[0].Kind != Attack || batch[1].Kind != Theft {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drain: %d", q.Len())
	}

	q.Publish(Fact{Kind: Slept, Tick: 2})
	if batch[0].Kind != Attack {
		t.Fatalf("publishing after drain must not clobber the drained batch")
	}
	next := q.Drain()
	if len(next) != 1 || next[0].Kind != Slept {
		t.Fatalf("second batch: %+v", next)
	}
	if empty := q.Drain(); len(empty) != 0 {
		t.Fatalf("third drain must be empty, got %d", len(empty))
	}
}
