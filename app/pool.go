// Copyright 2023 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mendersoftware/go-lib-micro/log"
	"github.com/pkg/errors"

	"github.com/testfarm/devicehub/model"
	"github.com/testfarm/devicehub/utils"
)

// Pool errors
var (
	// ErrNoMatchingDevice is the expected outcome of an allocation
	// attempt that found no free device satisfying the criteria.
	ErrNoMatchingDevice = errors.New("no device matching the criteria")
	ErrUnknownDevice    = errors.New("unknown device serial")
	ErrNotAllocated     = errors.New("device is not allocated")
	ErrDeviceAllocated  = errors.New("device is currently allocated")
	ErrDeviceExists     = errors.New("device serial already registered")
)

// EventSink receives device state change events. Sinks must not block;
// the pool calls them outside its lock.
type EventSink func(model.DeviceEvent)

// Pool is the authoritative collection of device records. All state
// transitions happen under the pool lock and appear atomic to every
// observer. Live telemetry queries issued while matching run with no lock
// held.
type Pool struct {
	selector *Selector
	clock    utils.Clock
	sink     EventSink

	mu      sync.Mutex
	devices map[string]*model.Device
	// order preserves registration order for deterministic scans and
	// snapshots.
	order   []string
	changed chan struct{}
}

// NewPool returns an empty pool using the given selector for allocation
// scans. The sink may be nil.
func NewPool(selector *Selector, clock utils.Clock, sink EventSink) *Pool {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Pool{
		selector: selector,
		clock:    clock,
		sink:     sink,
		devices:  make(map[string]*model.Device),
		changed:  make(chan struct{}),
	}
}

// Register adds a newly detected device to the pool in the free state.
func (p *Pool) Register(
	serial string,
	kind model.DeviceKind,
) (*model.Device, error) {
	if serial == "" {
		return nil, errors.New("empty device serial")
	}
	if !kind.Valid() {
		return nil, errors.Errorf("unknown device kind %q", kind)
	}
	now := p.clock.Now()
	device := &model.Device{
		Serial:    serial,
		Kind:      kind,
		State:     model.StateFree,
		CreatedTs: now,
		UpdatedTs: now,
	}

	p.mu.Lock()
	if _, exists := p.devices[serial]; exists {
		p.mu.Unlock()
		return nil, ErrDeviceExists
	}
	p.devices[serial] = device
	p.order = append(p.order, serial)
	out := *device
	p.notifyLocked()
	p.mu.Unlock()

	p.emit(out, false)
	return &out, nil
}

// Deregister removes a disconnected device from the pool.
func (p *Pool) Deregister(serial string) error {
	p.mu.Lock()
	device, ok := p.devices[serial]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownDevice
	}
	delete(p.devices, serial)
	for i, s := range p.order {
		if s == serial {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	out := *device
	p.notifyLocked()
	p.mu.Unlock()

	p.emit(out, true)
	return nil
}

// Allocate makes one non-blocking allocation attempt: it scans free
// devices in registration order and atomically transitions the first
// match to allocated. ErrNoMatchingDevice signals the normal empty
// outcome.
func (p *Pool) Allocate(
	ctx context.Context,
	criteria *model.Criteria,
) (*model.Device, error) {
	p.mu.Lock()
	candidates := make([]model.Device, 0, len(p.order))
	for _, serial := range p.order {
		if device := p.devices[serial]; device.State == model.StateFree {
			candidates = append(candidates, *device)
		}
	}
	p.mu.Unlock()

	// Matching may issue live telemetry queries, so it runs on a copy
	// with the lock released. The transition below re-checks the state
	// in case a concurrent caller won the race.
	for i := range candidates {
		candidate := &candidates[i]
		if !p.selector.Matches(ctx, candidate, criteria) {
			continue
		}
		if device, ok := p.commitAllocation(candidate.Serial); ok {
			p.emit(*device, false)
			return device, nil
		}
	}
	return nil, ErrNoMatchingDevice
}

func (p *Pool) commitAllocation(serial string) (*model.Device, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	device, ok := p.devices[serial]
	if !ok || device.State != model.StateFree {
		return nil, false
	}
	device.State = model.StateAllocated
	device.AllocationID = uuid.New().String()
	device.UpdatedTs = p.clock.Now()
	out := *device
	p.notifyLocked()
	return &out, true
}

// AllocateWait retries the allocation scan whenever any device state
// changes, until a device is allocated, the timeout elapses or the
// context is cancelled. Timeout expiry returns ErrNoMatchingDevice.
func (p *Pool) AllocateWait(
	ctx context.Context,
	criteria *model.Criteria,
	timeout time.Duration,
) (*model.Device, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		// Subscribe before scanning so a state change landing while the
		// scan runs lock-free still wakes the waiter.
		ch := p.waitCh()
		device, err := p.Allocate(ctx, criteria)
		if err == nil {
			return device, nil
		} else if err != ErrNoMatchingDevice {
			return nil, err
		}
		select {
		case <-ch:
		case <-timer.C:
			return nil, ErrNoMatchingDevice
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Free releases an allocated device into the state reported by whoever
// executed the command.
func (p *Pool) Free(serial string, state model.FreeDeviceState) error {
	if !state.Valid() {
		return errors.Errorf("unknown free device state %q", state)
	}
	p.mu.Lock()
	device, ok := p.devices[serial]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownDevice
	}
	if device.State != model.StateAllocated {
		p.mu.Unlock()
		return ErrNotAllocated
	}
	device.State = state.PoolState()
	device.AllocationID = ""
	device.UpdatedTs = p.clock.Now()
	out := *device
	p.notifyLocked()
	p.mu.Unlock()

	p.emit(out, false)
	return nil
}

// MarkUnavailable records a device fault or disconnect. The transition is
// administrative and applies from any state.
func (p *Pool) MarkUnavailable(ctx context.Context, serial, reason string) error {
	if reason != "" {
		log.FromContext(ctx).Warnf(
			"device %s marked unavailable: %s", serial, reason)
	}
	return p.transition(serial, model.StateUnavailable)
}

// MarkIgnored excludes a device from allocation until explicitly
// re-included.
func (p *Pool) MarkIgnored(serial string) error {
	return p.transition(serial, model.StateIgnored)
}

// Recover re-includes an unavailable or ignored device. Recovering a free
// device is a no-op; an allocated device cannot be recovered.
func (p *Pool) Recover(serial string) error {
	p.mu.Lock()
	device, ok := p.devices[serial]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownDevice
	}
	if device.State == model.StateAllocated {
		p.mu.Unlock()
		return ErrDeviceAllocated
	}
	if device.State == model.StateFree {
		p.mu.Unlock()
		return nil
	}
	device.State = model.StateFree
	device.UpdatedTs = p.clock.Now()
	out := *device
	p.notifyLocked()
	p.mu.Unlock()

	p.emit(out, false)
	return nil
}

func (p *Pool) transition(serial string, state model.DeviceState) error {
	p.mu.Lock()
	device, ok := p.devices[serial]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownDevice
	}
	device.State = state
	device.AllocationID = ""
	device.UpdatedTs = p.clock.Now()
	out := *device
	p.notifyLocked()
	p.mu.Unlock()

	p.emit(out, false)
	return nil
}

// Get returns a copy of the record for the given serial.
func (p *Pool) Get(serial string) (*model.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	device, ok := p.devices[serial]
	if !ok {
		return nil, ErrUnknownDevice
	}
	out := *device
	return &out, nil
}

// Snapshot returns a consistent point-in-time copy of every record in
// registration order.
func (p *Pool) Snapshot() []model.Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	devices := make([]model.Device, 0, len(p.order))
	for _, serial := range p.order {
		devices = append(devices, *p.devices[serial])
	}
	return devices
}

// waitCh returns a channel closed on the next device state change.
func (p *Pool) waitCh() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

func (p *Pool) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Pool) emit(device model.Device, removed bool) {
	if p.sink == nil {
		return
	}
	p.sink(model.DeviceEvent{
		Serial:       device.Serial,
		Kind:         device.Kind,
		State:        device.State,
		AllocationID: device.AllocationID,
		Removed:      removed,
		Ts:           device.UpdatedTs,
	})
}
