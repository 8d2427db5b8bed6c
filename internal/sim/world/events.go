package world

import "gardensim.ai/internal/protocol"

// eventRing keeps recent narrative events under monotonically increasing
// cursors so reconnecting clients can backfill what they missed. Old
// entries fall off the back; a Since call below the retained range starts
// from the oldest held event.
type eventRing struct {
	buf  []protocol.EventBatchItem
	size int
	next uint64 // cursor the next appended event receives
}

func newEventRing(size int) *eventRing {
	if size < 16 {
		size = 16
	}
	return &eventRing{size: size}
}

// Append stores ev and returns its cursor. Cursors start at 1 so a zero
// cursor always means "from the beginning".
func (r *eventRing) Append(ev protocol.NarrativeEvent) uint64 {
	r.next++
	item := protocol.EventBatchItem{Cursor: r.next, Event: ev}
	if len(r.buf) < r.size {
		r.buf = append(r.buf, item)
	} else {
		copy(r.buf, r.buf[1:])
		r.buf[len(r.buf)-1] = item
	}
	return r.next
}

// Cursor reports the cursor of the newest event, 0 when none exist.
func (r *eventRing) Cursor() uint64 { return r.next }

// Since returns up to limit events with cursors strictly above cursor, plus
// the cursor to resume from.
func (r *eventRing) Since(cursor uint64, limit int) ([]protocol.EventBatchItem, uint64) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	out := make([]protocol.EventBatchItem, 0, limit)
	for _, item := range r.buf {
		if item.Cursor <= cursor {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	nextCursor := cursor
	if n := len(out); n > 0 {
		nextCursor = out[n-1].Cursor
	}
	return out, nextCursor
}
