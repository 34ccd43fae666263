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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testfarm/devicehub/model"
)

// fakeDataStore implements store.DataStore backed by maps.
type fakeDataStore struct {
	devices map[string]model.Device
	results map[string]model.CommandResult

	pingErr error
	getErr  error
}

func newFakeDataStore() *fakeDataStore {
	return &fakeDataStore{
		devices: make(map[string]model.Device),
		results: make(map[string]model.CommandResult),
	}
}

func (f *fakeDataStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeDataStore) UpsertDevice(
	_ context.Context, device model.Device,
) error {
	f.devices[device.Serial] = device
	return nil
}

func (f *fakeDataStore) DeleteDevice(_ context.Context, serial string) error {
	delete(f.devices, serial)
	return nil
}

func (f *fakeDataStore) GetDevices(context.Context) ([]model.Device, error) {
	devices := make([]model.Device, 0, len(f.devices))
	for _, device := range f.devices {
		devices = append(devices, device)
	}
	return devices, nil
}

func (f *fakeDataStore) UpsertCommandResult(
	_ context.Context, serial string, result model.CommandResult,
) error {
	f.results[serial] = result
	return nil
}

func (f *fakeDataStore) GetCommandResult(
	_ context.Context, serial string,
) (*model.CommandResult, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	result, ok := f.results[serial]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

func (f *fakeDataStore) Close() error { return nil }

func TestLedgerMemoryOnly(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(nil)
	ctx := context.Background()

	// An unknown serial reads back as never allocated.
	result, err := ledger.LastResult(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotAllocated, result.Status)

	recorded := model.CommandResult{
		Status:      model.StatusInvocationFailed,
		ErrorDetail: "shell command exited 1",
	}
	require.NoError(t, ledger.Record(ctx, testSerial, recorded))

	result, err = ledger.LastResult(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, recorded, result)

	// Entries are overwritten, not appended.
	recorded = model.CommandResult{Status: model.StatusInvocationSuccess}
	require.NoError(t, ledger.Record(ctx, testSerial, recorded))
	result, err = ledger.LastResult(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, recorded, result)
}

func TestLedgerWriteThrough(t *testing.T) {
	t.Parallel()

	ds := newFakeDataStore()
	ledger := NewLedger(ds)
	ctx := context.Background()

	recorded := model.CommandResult{Status: model.StatusExecuting}
	require.NoError(t, ledger.Record(ctx, testSerial, recorded))
	assert.Equal(t, recorded, ds.results[testSerial])
}

func TestLedgerStoreFallback(t *testing.T) {
	t.Parallel()

	ds := newFakeDataStore()
	stored := model.CommandResult{
		Status:          model.StatusInvocationSuccess,
		FreeDeviceState: model.FreeDeviceAvailable,
	}
	ds.results[testSerial] = stored

	// A fresh ledger, as after a restart, reads through to the store.
	ledger := NewLedger(ds)
	ctx := context.Background()
	result, err := ledger.LastResult(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, stored, result)

	// The fallback result is cached: a store failure afterwards does not
	// surface.
	ds.getErr = errors.New("connection reset")
	result, err = ledger.LastResult(ctx, testSerial)
	require.NoError(t, err)
	assert.Equal(t, stored, result)

	_, err = ledger.LastResult(ctx, "other")
	assert.Error(t, err)
}
