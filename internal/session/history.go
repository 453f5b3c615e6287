package session

import (
	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// eventJournal keeps the most recent connection events; once full, the oldest
// entries are overwritten. Executor-only.
type eventJournal struct {
	buffer      mpmc.RichOverlappedRingBuffer[ConnectionEvent]
	overwritten uint64
}

func newEventJournal(size uint32) *eventJournal {
	return &eventJournal{buffer: mpmc.NewOverlappedRingBuffer[ConnectionEvent](size)}
}

func (j *eventJournal) append(ev ConnectionEvent) error {
	overwrites, err := j.buffer.EnqueueM(ev)
	if err != nil {
		return err
	}
	j.overwritten += uint64(overwrites)
	return nil
}

// snapshot returns the retained events, oldest first, and keeps them.
func (j *eventJournal) snapshot() ([]ConnectionEvent, error) {
	var events []ConnectionEvent
	for !j.buffer.IsEmpty() {
		ev, err := j.buffer.Dequeue()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	for _, ev := range events {
		if _, err := j.buffer.EnqueueM(ev); err != nil {
			return events, err
		}
	}
	return events, nil
}
