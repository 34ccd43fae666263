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
	"github.com/gin-gonic/gin"

	"github.com/mendersoftware/go-lib-micro/accesslog"
	"github.com/mendersoftware/go-lib-micro/requestid"

	"github.com/testfarm/devicehub/app"
	"github.com/testfarm/devicehub/client/nats"
)

// API URL used by the HTTP router
const (
	APIURLInternal   = "/api/internal/v1/devicehub"
	APIURLManagement = "/api/management/v1/devicehub"

	APIURLInternalAlive   = APIURLInternal + "/alive"
	APIURLInternalHealth  = APIURLInternal + "/health"
	APIURLInternalDevices = APIURLInternal + "/devices"
	APIURLInternalDevice  = APIURLInternal + "/devices/:serial"

	APIURLManagementDevices       = APIURLManagement + "/devices"
	APIURLManagementDevice        = APIURLManagement + "/devices/:serial"
	APIURLManagementDeviceIgnore  = APIURLManagement + "/devices/:serial/ignore"
	APIURLManagementDeviceRecover = APIURLManagement + "/devices/:serial/recover"
	APIURLManagementDeviceResult  = APIURLManagement + "/devices/:serial/result"
	APIURLManagementEvents        = APIURLManagement + "/events"
)

// NewRouter returns the gin router
func NewRouter(
	hub app.App,
	natsClient nats.Client,
) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	gin.DisableConsoleColor()

	router := gin.New()
	router.Use(accesslog.Middleware())
	router.Use(gin.Recovery())
	router.Use(requestid.Middleware())

	status := NewStatusController(hub)
	router.GET(APIURLInternalAlive, status.Alive)
	router.GET(APIURLInternalHealth, status.Health)

	device := NewDeviceController(hub)
	router.POST(APIURLInternalDevices, device.Provision)
	router.DELETE(APIURLInternalDevice, device.Delete)

	management := NewManagementController(hub)
	router.GET(APIURLManagementDevices, management.ListDevices)
	router.GET(APIURLManagementDevice, management.GetDevice)
	router.POST(APIURLManagementDeviceIgnore, management.Ignore)
	router.POST(APIURLManagementDeviceRecover, management.Recover)
	router.GET(APIURLManagementDeviceResult, management.GetLastResult)
	router.PUT(APIURLManagementDeviceResult, management.RecordResult)

	if natsClient != nil {
		events := NewEventsController(natsClient)
		router.GET(APIURLManagementEvents, events.Subscribe)
	}

	return router, nil
}
