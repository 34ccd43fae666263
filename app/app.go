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
	"time"

	"github.com/mendersoftware/go-lib-micro/log"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/testfarm/devicehub/client/nats"
	"github.com/testfarm/devicehub/model"
	"github.com/testfarm/devicehub/store"
	"github.com/testfarm/devicehub/utils"
)

// App exposes the device pool and the command ledger to the transport
// layers. Every method is safe for concurrent use.
type App interface {
	HealthCheck(ctx context.Context) error
	RegisterDevice(
		ctx context.Context,
		serial string,
		kind model.DeviceKind,
	) (*model.Device, error)
	RemoveDevice(ctx context.Context, serial string) error
	AllocateDevice(
		ctx context.Context,
		criteria *model.Criteria,
	) (*model.Device, error)
	AllocateDeviceWait(
		ctx context.Context,
		criteria *model.Criteria,
		timeout time.Duration,
	) (*model.Device, error)
	FreeDevice(
		ctx context.Context,
		serial string,
		state model.FreeDeviceState,
	) error
	MarkUnavailable(ctx context.Context, serial, reason string) error
	MarkIgnored(ctx context.Context, serial string) error
	RecoverDevice(ctx context.Context, serial string) error
	GetDevice(ctx context.Context, serial string) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	LastCommandResult(
		ctx context.Context,
		serial string,
	) (model.CommandResult, error)
	RecordCommandResult(
		ctx context.Context,
		serial string,
		result model.CommandResult,
	) error
}

// devicehub is the App implementation backed by the in-memory pool and
// ledger, with optional persistence and event publishing.
type devicehub struct {
	pool   *Pool
	ledger *Ledger
	store  store.DataStore
	nats   nats.Client
}

// New returns an App. The data store and the nats client may both be nil,
// in which case the hub runs memory-only without an event stream.
func New(
	ds store.DataStore,
	nc nats.Client,
	selector *Selector,
	clock utils.Clock,
) App {
	hub := &devicehub{
		ledger: NewLedger(ds),
		store:  ds,
		nats:   nc,
	}
	hub.pool = NewPool(selector, clock, hub.onDeviceEvent)
	return hub
}

// HealthCheck performs a health check and returns an error if it fails
func (a *devicehub) HealthCheck(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.store.Ping(ctx)
}

func (a *devicehub) RegisterDevice(
	ctx context.Context,
	serial string,
	kind model.DeviceKind,
) (*model.Device, error) {
	return a.pool.Register(serial, kind)
}

func (a *devicehub) RemoveDevice(ctx context.Context, serial string) error {
	return a.pool.Deregister(serial)
}

func (a *devicehub) AllocateDevice(
	ctx context.Context,
	criteria *model.Criteria,
) (*model.Device, error) {
	if criteria == nil {
		criteria = &model.Criteria{}
	}
	if err := criteria.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid selection criteria")
	}
	return a.pool.Allocate(ctx, criteria)
}

func (a *devicehub) AllocateDeviceWait(
	ctx context.Context,
	criteria *model.Criteria,
	timeout time.Duration,
) (*model.Device, error) {
	if criteria == nil {
		criteria = &model.Criteria{}
	}
	if err := criteria.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid selection criteria")
	}
	return a.pool.AllocateWait(ctx, criteria, timeout)
}

// FreeDevice releases the device and folds the reported state into its
// ledger entry.
func (a *devicehub) FreeDevice(
	ctx context.Context,
	serial string,
	state model.FreeDeviceState,
) error {
	if err := a.pool.Free(serial, state); err != nil {
		return err
	}
	result, err := a.ledger.LastResult(ctx, serial)
	if err != nil {
		return err
	}
	if result.Status == model.StatusNotAllocated {
		result.Status = model.StatusInvocationSuccess
	}
	result.FreeDeviceState = state
	return a.ledger.Record(ctx, serial, result)
}

func (a *devicehub) MarkUnavailable(
	ctx context.Context,
	serial, reason string,
) error {
	return a.pool.MarkUnavailable(ctx, serial, reason)
}

func (a *devicehub) MarkIgnored(ctx context.Context, serial string) error {
	return a.pool.MarkIgnored(serial)
}

func (a *devicehub) RecoverDevice(ctx context.Context, serial string) error {
	return a.pool.Recover(serial)
}

func (a *devicehub) GetDevice(
	ctx context.Context,
	serial string,
) (*model.Device, error) {
	return a.pool.Get(serial)
}

func (a *devicehub) ListDevices(ctx context.Context) ([]model.Device, error) {
	return a.pool.Snapshot(), nil
}

func (a *devicehub) LastCommandResult(
	ctx context.Context,
	serial string,
) (model.CommandResult, error) {
	return a.ledger.LastResult(ctx, serial)
}

func (a *devicehub) RecordCommandResult(
	ctx context.Context,
	serial string,
	result model.CommandResult,
) error {
	if !result.Status.Valid() {
		return errors.Errorf("unknown command status %q", result.Status)
	}
	return a.ledger.Record(ctx, serial, result)
}

// onDeviceEvent persists and broadcasts a state transition. Both paths
// are best effort; the pool transition already happened.
func (a *devicehub) onDeviceEvent(event model.DeviceEvent) {
	ctx := context.Background()
	l := log.FromContext(ctx)
	if a.store != nil {
		var err error
		if event.Removed {
			err = a.store.DeleteDevice(ctx, event.Serial)
		} else {
			err = a.store.UpsertDevice(ctx, model.Device{
				Serial:       event.Serial,
				Kind:         event.Kind,
				State:        event.State,
				AllocationID: event.AllocationID,
				UpdatedTs:    event.Ts,
			})
		}
		if err != nil {
			l.Errorf("failed to persist device %s: %s",
				event.Serial, err.Error())
		}
	}
	if a.nats != nil {
		data, err := msgpack.Marshal(&event)
		if err == nil {
			err = a.nats.Publish(
				model.GetDeviceSubject(event.Serial), data)
		}
		if err != nil {
			l.Errorf("failed to publish event for device %s: %s",
				event.Serial, err.Error())
		}
	}
}
