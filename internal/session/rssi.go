package session

import (
	"time"

	"github.com/srg/gattsession/internal/device"
)

// DefaultRSSIPollPeriod applies when neither the caller nor Options set a
// positive polling period.
const DefaultRSSIPollPeriod = 10 * time.Second

// rssiMonitor serves one-shot RSSI reads and periodic polling. Executor-only.
type rssiMonitor struct {
	s       *Session
	slot    *OperationSlot[int]
	samples *hub[int]

	pollSeq uint64
	period  time.Duration
	timer   Timer
}

func newRSSIMonitor(s *Session) *rssiMonitor {
	return &rssiMonitor{
		s:       s,
		slot:    newOperationSlot[int](OpRSSI),
		samples: newHub[int](s.exec, s.opts.RSSIBuffer),
	}
}

func (r *rssiMonitor) read(complete func(int, error)) {
	if !r.s.conn.connected() {
		complete(0, device.ErrDisconnected)
		return
	}
	seq := r.slot.begin(r.s.clock, r.s.opts.OperationTimeout, complete, func(seq uint64) {
		r.s.exec.post(func() { r.slot.expire(seq) })
	})
	r.s.adapter.ReadRSSI(r.s.peripheral, func(rssi int, err error) {
		r.s.exec.post(func() {
			r.slot.resolve(seq, rssi, device.NewAdapterError("rssi", device.NormalizeError(err)))
		})
	})
}

// startPolling reads immediately and then every period until stopped.
// A running poll is replaced.
func (r *rssiMonitor) startPolling(period time.Duration) *Stream[int] {
	r.stopPolling()
	if period <= 0 {
		period = r.s.opts.RSSIPollPeriod
	}
	if period <= 0 {
		period = DefaultRSSIPollPeriod
	}
	r.pollSeq++
	r.period = period
	stream := r.samples.subscribeLocal()
	r.poll(r.pollSeq)
	return stream
}

func (r *rssiMonitor) poll(seq uint64) {
	if seq != r.pollSeq {
		return
	}
	r.read(func(rssi int, err error) {
		if seq != r.pollSeq {
			return
		}
		if err != nil {
			r.s.logger.WithError(err).Debug("RSSI poll failed")
			return
		}
		r.samples.broadcast(rssi)
	})
	r.timer = r.s.clock.AfterFunc(r.period, func() {
		r.s.exec.post(func() { r.poll(seq) })
	})
}

func (r *rssiMonitor) stopPolling() {
	r.pollSeq++
	stopTimer(&r.timer)
	r.samples.closeAll()
}

// linkDown fails pending reads and ends polling.
func (r *rssiMonitor) linkDown(err error) {
	r.stopPolling()
	r.slot.cancelAll(err)
}
