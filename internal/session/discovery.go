package session

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DiscoveredService is a service together with its characteristics, in the
// order the peripheral reported them.
type DiscoveredService struct {
	Info            device.ServiceInfo
	Name            string
	characteristics *orderedmap.OrderedMap[string, device.CharacteristicInfo]
}

// UUID returns the normalized service UUID.
func (s *DiscoveredService) UUID() string { return s.Info.UUID }

// Characteristics returns the discovered characteristics in discovery order.
func (s *DiscoveredService) Characteristics() []device.CharacteristicInfo {
	out := make([]device.CharacteristicInfo, 0, s.characteristics.Len())
	for p := s.characteristics.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// Characteristic looks up a characteristic of this service by UUID.
func (s *DiscoveredService) Characteristic(uuid string) (device.CharacteristicInfo, bool) {
	return s.characteristics.Get(device.NormalizeUUID(uuid))
}

// DiscoveryResult is the service tree of a completed discovery. It is
// immutable once published.
type DiscoveryResult struct {
	services *orderedmap.OrderedMap[string, *DiscoveredService]
	charName func(uuid string) string
}

func newDiscoveryResult(charName func(uuid string) string) *DiscoveryResult {
	return &DiscoveryResult{
		services: orderedmap.New[string, *DiscoveredService](),
		charName: charName,
	}
}

// CharacteristicName returns the registered name of a characteristic, or "".
func (r *DiscoveryResult) CharacteristicName(uuid string) string {
	if r.charName == nil {
		return ""
	}
	return r.charName(uuid)
}

// Services returns the discovered services in discovery order.
func (r *DiscoveryResult) Services() []*DiscoveredService {
	out := make([]*DiscoveredService, 0, r.services.Len())
	for p := r.services.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// Service looks up a discovered service by UUID.
func (r *DiscoveryResult) Service(uuid string) (*DiscoveredService, bool) {
	return r.services.Get(device.NormalizeUUID(uuid))
}

// Len returns the number of services.
func (r *DiscoveryResult) Len() int { return r.services.Len() }

// CharacteristicCount returns the number of characteristics across all services.
func (r *DiscoveryResult) CharacteristicCount() int {
	n := 0
	for p := r.services.Oldest(); p != nil; p = p.Next() {
		n += p.Value.characteristics.Len()
	}
	return n
}

type characteristicJSON struct {
	UUID       string   `json:"uuid"`
	Name       string   `json:"name,omitempty"`
	Properties []string `json:"properties"`
}

type serviceJSON struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name,omitempty"`
	Characteristics []characteristicJSON `json:"characteristics"`
}

// MarshalJSON renders the tree as an ordered array of services.
func (r *DiscoveryResult) MarshalJSON() ([]byte, error) {
	out := make([]serviceJSON, 0, r.services.Len())
	for _, svc := range r.Services() {
		sj := serviceJSON{UUID: svc.Info.UUID, Name: svc.Name, Characteristics: []characteristicJSON{}}
		for _, ch := range svc.Characteristics() {
			sj.Characteristics = append(sj.Characteristics, characteristicJSON{
				UUID:       ch.UUID,
				Name:       r.CharacteristicName(ch.UUID),
				Properties: ch.Properties.Names(),
			})
		}
		out = append(out, sj)
	}
	return json.Marshal(out)
}

// discoveryPipeline walks services and then the characteristics of each
// service, one adapter request at a time. At most one discovery runs per
// session; every run gets a sequence number and callbacks of older runs are
// discarded. All methods are executor-only.
type discoveryPipeline struct {
	s *Session

	sequence  uint64
	running   bool
	future    *Future[*DiscoveryResult]
	timer     Timer
	result    *DiscoveryResult
	remaining []device.ServiceInfo
}

func (d *discoveryPipeline) logger() *logrus.Entry {
	return d.s.logger.WithField("discovery", d.sequence)
}

// start begins a discovery run, or fails fast if one is already running or the
// link is not up. A nil filter discovers every service.
func (d *discoveryPipeline) start(filter []string, f *Future[*DiscoveryResult]) {
	if d.running {
		f.complete(nil, device.ErrDiscoveryInProgress)
		return
	}
	if !d.s.conn.connected() {
		f.complete(nil, device.ErrDisconnected)
		return
	}

	d.sequence++
	seq := d.sequence
	d.running = true
	d.future = f
	d.result = newDiscoveryResult(d.s.codecs.CharacteristicName)
	d.remaining = nil

	if timeout := d.s.opts.DiscoveryTimeout; timeout > 0 {
		d.timer = d.s.clock.AfterFunc(timeout, func() {
			d.s.exec.post(func() { d.expire(seq) })
		})
	}

	d.logger().WithField("filter", filter).Debug("Discovering services")
	d.s.adapter.DiscoverServices(d.s.peripheral, filter, func(services []device.ServiceInfo, err error) {
		d.s.exec.post(func() { d.onServices(seq, services, err) })
	})
}

func (d *discoveryPipeline) stale(seq uint64) bool {
	if d.running && seq == d.sequence {
		return false
	}
	d.s.logger.WithField("discovery", seq).Debug("Discarding stale discovery callback")
	return true
}

func (d *discoveryPipeline) onServices(seq uint64, services []device.ServiceInfo, err error) {
	if d.stale(seq) {
		return
	}
	if err != nil {
		d.fail(device.NewAdapterError("discover services", device.NormalizeError(err)))
		return
	}
	if len(services) == 0 {
		d.fail(device.ErrNoServices)
		return
	}

	for _, svc := range services {
		svc.UUID = device.NormalizeUUID(svc.UUID)
		if svc.UUID == "" {
			continue
		}
		if _, dup := d.result.services.Get(svc.UUID); dup {
			continue
		}
		d.result.services.Set(svc.UUID, &DiscoveredService{
			Info:            svc,
			Name:            d.s.codecs.ServiceName(svc.UUID),
			characteristics: orderedmap.New[string, device.CharacteristicInfo](),
		})
		d.remaining = append(d.remaining, svc)
	}
	d.next(seq)
}

func (d *discoveryPipeline) next(seq uint64) {
	if len(d.remaining) == 0 {
		d.succeed()
		return
	}
	svc := d.remaining[0]
	d.remaining = d.remaining[1:]

	d.logger().WithField("service", svc.UUID).Debug("Discovering characteristics")
	d.s.adapter.DiscoverCharacteristics(d.s.peripheral, svc, nil, func(chars []device.CharacteristicInfo, err error) {
		d.s.exec.post(func() { d.onCharacteristics(seq, svc, chars, err) })
	})
}

func (d *discoveryPipeline) onCharacteristics(seq uint64, svc device.ServiceInfo, chars []device.CharacteristicInfo, err error) {
	if d.stale(seq) {
		return
	}
	if err != nil {
		d.fail(device.NewAdapterError("discover characteristics", device.NormalizeError(err)))
		return
	}

	ds, _ := d.result.services.Get(svc.UUID)
	for _, ch := range chars {
		ch.UUID = device.NormalizeUUID(ch.UUID)
		if ch.UUID == "" {
			continue
		}
		ch.ServiceUUID = svc.UUID
		ds.characteristics.Set(ch.UUID, ch)
	}
	d.next(seq)
}

func (d *discoveryPipeline) expire(seq uint64) {
	if d.running && seq == d.sequence {
		d.logger().Warn("Discovery timed out")
		d.fail(device.ErrTimeout)
	}
}

// abort fails a running discovery, e.g. because the link went away.
func (d *discoveryPipeline) abort(err error) {
	if d.running {
		d.fail(err)
	}
}

func (d *discoveryPipeline) fail(err error) {
	f := d.end()
	d.logger().WithError(err).Debug("Discovery failed")
	f.complete(nil, err)
}

func (d *discoveryPipeline) succeed() {
	result := d.result
	f := d.end()
	d.s.install(result)
	d.logger().WithFields(logrus.Fields{
		"services":        result.Len(),
		"characteristics": result.CharacteristicCount(),
	}).Info("Discovery completed")
	f.complete(result, nil)
}

func (d *discoveryPipeline) end() *Future[*DiscoveryResult] {
	f := d.future
	d.running = false
	d.future = nil
	d.result = nil
	d.remaining = nil
	stopTimer(&d.timer)
	return f
}
