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

package store

import (
	"context"

	"github.com/testfarm/devicehub/model"
)

// DataStore persists the device registry and the command result ledger so
// a restarted hub can still answer last-result queries. The in-memory
// pool remains authoritative for live allocation state.
type DataStore interface {
	Ping(ctx context.Context) error
	UpsertDevice(ctx context.Context, device model.Device) error
	DeleteDevice(ctx context.Context, serial string) error
	GetDevices(ctx context.Context) ([]model.Device, error)
	// UpsertCommandResult overwrites the ledger entry for the serial;
	// entries are never appended.
	UpsertCommandResult(
		ctx context.Context,
		serial string,
		result model.CommandResult,
	) error
	// GetCommandResult returns nil without error when no entry exists.
	GetCommandResult(
		ctx context.Context,
		serial string,
	) (*model.CommandResult, error)
	Close() error
}
