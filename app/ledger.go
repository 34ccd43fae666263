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

	"github.com/pkg/errors"

	"github.com/testfarm/devicehub/model"
	"github.com/testfarm/devicehub/store"
)

// Ledger retains the most recent command result per device serial.
// Entries are overwritten, never appended. With a data store configured,
// writes go through to it and reads fall back to it, so results survive a
// hub restart.
type Ledger struct {
	mu      sync.RWMutex
	results map[string]model.CommandResult
	store   store.DataStore
}

// NewLedger returns a ledger; ds may be nil for memory-only operation.
func NewLedger(ds store.DataStore) *Ledger {
	return &Ledger{
		results: make(map[string]model.CommandResult),
		store:   ds,
	}
}

// Record overwrites the entry for the serial.
func (l *Ledger) Record(
	ctx context.Context,
	serial string,
	result model.CommandResult,
) error {
	l.mu.Lock()
	l.results[serial] = result
	l.mu.Unlock()

	if l.store != nil {
		err := l.store.UpsertCommandResult(ctx, serial, result)
		return errors.Wrap(err, "failed to persist command result")
	}
	return nil
}

// LastResult returns the most recent result for the serial. When no
// command has ever completed against it, the result carries the
// not-allocated status; that is a distinguishable outcome, not an error.
func (l *Ledger) LastResult(
	ctx context.Context,
	serial string,
) (model.CommandResult, error) {
	l.mu.RLock()
	result, ok := l.results[serial]
	l.mu.RUnlock()
	if ok {
		return result, nil
	}

	if l.store != nil {
		stored, err := l.store.GetCommandResult(ctx, serial)
		if err != nil {
			return model.CommandResult{},
				errors.Wrap(err, "failed to read command result")
		}
		if stored != nil {
			l.mu.Lock()
			l.results[serial] = *stored
			l.mu.Unlock()
			return *stored, nil
		}
	}
	return model.CommandResult{Status: model.StatusNotAllocated}, nil
}
