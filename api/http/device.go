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
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"

	"github.com/testfarm/devicehub/app"
	"github.com/testfarm/devicehub/model"
)

// DeviceController contains the device registration end-points used by
// the device detection glue.
type DeviceController struct {
	app app.App
}

// NewDeviceController returns a new DeviceController
func NewDeviceController(app app.App) *DeviceController {
	return &DeviceController{app: app}
}

type provisionDeviceRequest struct {
	Serial string           `json:"serial"`
	Kind   model.DeviceKind `json:"kind"`
}

func (r provisionDeviceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Serial, validation.Required),
		validation.Field(&r.Kind, validation.Required, validation.By(
			func(interface{}) error {
				if !r.Kind.Valid() {
					return validation.NewError("kind",
						"unrecognized device kind")
				}
				return nil
			})),
	)
}

// Provision responds to POST /devices: it registers a newly detected
// device in the free state.
func (h DeviceController) Provision(c *gin.Context) {
	ctx := c.Request.Context()

	req := provisionDeviceRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": errors.Wrap(err, "invalid payload").Error(),
		})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	device, err := h.app.RegisterDevice(ctx, req.Serial, req.Kind)
	if err == app.ErrDeviceExists {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
		return
	} else if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, device)
}

// Delete responds to DELETE /devices/:serial: it deregisters a
// disconnected device.
func (h DeviceController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	serial := c.Param("serial")

	err := h.app.RemoveDevice(ctx, serial)
	if err == app.ErrUnknownDevice {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	} else if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.Writer.WriteHeader(http.StatusNoContent)
}
