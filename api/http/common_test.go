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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/testfarm/devicehub/app"
	"github.com/testfarm/devicehub/model"
	"github.com/testfarm/devicehub/store"
	"github.com/testfarm/devicehub/telemetry"
	"github.com/testfarm/devicehub/utils"
)

type nilProps struct{}

func (nilProps) Property(context.Context, string, string) (string, error) {
	return "", nil
}

type nilTelemetry struct{}

func (nilTelemetry) BatteryLevel(
	context.Context, string,
) (telemetry.Reading, error) {
	return telemetry.Unavailable, nil
}

func (nilTelemetry) BatteryTemperature(
	context.Context, string,
) (telemetry.Reading, error) {
	return telemetry.Unavailable, nil
}

func newTestHub(ds store.DataStore) app.App {
	return app.New(ds, nil,
		app.NewSelector(nilProps{}, nilTelemetry{}), utils.RealClock{})
}

func newTestRouter(t *testing.T, hub app.App) *gin.Engine {
	t.Helper()
	router, err := NewRouter(hub, nil)
	require.NoError(t, err)
	return router
}

func doRequest(
	router *gin.Engine,
	method, url string,
	body interface{},
) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, "http://localhost"+url, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func provisionTestDevice(
	t *testing.T,
	router *gin.Engine,
	serial string,
	kind model.DeviceKind,
) {
	t.Helper()
	w := doRequest(router, http.MethodPost, APIURLInternalDevices,
		provisionDeviceRequest{Serial: serial, Kind: kind})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func deviceURL(base, serial string) string {
	return strings.Replace(base, ":serial", serial, 1)
}
