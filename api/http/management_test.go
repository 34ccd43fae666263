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

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testfarm/devicehub/model"
)

func TestListAndGetDevices(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, newTestHub(nil))

	w := doRequest(router, http.MethodGet, APIURLManagementDevices, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var devices []model.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	assert.Empty(t, devices)

	provisionTestDevice(t, router, "12345", model.KindPhysical)
	provisionTestDevice(t, router, "emulator-5554", model.KindEmulator)

	w = doRequest(router, http.MethodGet, APIURLManagementDevices, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "12345", devices[0].Serial)

	w = doRequest(router, http.MethodGet,
		deviceURL(APIURLManagementDevice, "emulator-5554"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var device model.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &device))
	assert.Equal(t, model.KindEmulator, device.Kind)

	w = doRequest(router, http.MethodGet,
		deviceURL(APIURLManagementDevice, "nonexistent"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIgnoreRecoverDevice(t *testing.T) {
	t.Parallel()

	hub := newTestHub(nil)
	router := newTestRouter(t, hub)
	provisionTestDevice(t, router, "12345", model.KindPhysical)

	w := doRequest(router, http.MethodPost,
		deviceURL(APIURLManagementDeviceIgnore, "12345"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	device, err := hub.GetDevice(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, model.StateIgnored, device.State)

	w = doRequest(router, http.MethodPost,
		deviceURL(APIURLManagementDeviceRecover, "12345"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	device, err = hub.GetDevice(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, model.StateFree, device.State)

	// An allocated device cannot be recovered.
	_, err = hub.AllocateDevice(context.Background(), nil)
	require.NoError(t, err)
	w = doRequest(router, http.MethodPost,
		deviceURL(APIURLManagementDeviceRecover, "12345"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodPost,
		deviceURL(APIURLManagementDeviceIgnore, "nonexistent"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommandResult(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, newTestHub(nil))
	provisionTestDevice(t, router, "12345", model.KindPhysical)

	// Nothing ever ran against this serial.
	w := doRequest(router, http.MethodGet,
		deviceURL(APIURLManagementDeviceResult, "12345"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result model.CommandResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, model.StatusNotAllocated, result.Status)

	w = doRequest(router, http.MethodPut,
		deviceURL(APIURLManagementDeviceResult, "12345"),
		model.CommandResult{
			Status:      model.StatusInvocationFailed,
			ErrorDetail: "exit status 137",
		})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodGet,
		deviceURL(APIURLManagementDeviceResult, "12345"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, model.StatusInvocationFailed, result.Status)
	assert.Equal(t, "exit status 137", result.ErrorDetail)

	// Unknown statuses never enter the ledger.
	w = doRequest(router, http.MethodPut,
		deviceURL(APIURLManagementDeviceResult, "12345"),
		model.CommandResult{Status: "havoc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
