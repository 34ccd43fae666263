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
	"github.com/pkg/errors"

	"github.com/testfarm/devicehub/app"
	"github.com/testfarm/devicehub/model"
)

// ManagementController container for end-points
type ManagementController struct {
	app app.App
}

// NewManagementController returns a new ManagementController
func NewManagementController(app app.App) *ManagementController {
	return &ManagementController{app: app}
}

// ListDevices responds to GET /devices with a point-in-time snapshot of
// the pool.
func (h ManagementController) ListDevices(c *gin.Context) {
	ctx := c.Request.Context()

	devices, err := h.app.ListDevices(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, devices)
}

// GetDevice responds to GET /devices/:serial
func (h ManagementController) GetDevice(c *gin.Context) {
	ctx := c.Request.Context()
	serial := c.Param("serial")

	device, err := h.app.GetDevice(ctx, serial)
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

	c.JSON(http.StatusOK, device)
}

// Ignore responds to POST /devices/:serial/ignore: it excludes the
// device from allocation until explicitly recovered.
func (h ManagementController) Ignore(c *gin.Context) {
	ctx := c.Request.Context()
	serial := c.Param("serial")

	err := h.app.MarkIgnored(ctx, serial)
	if err == app.ErrUnknownDevice {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	} else if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.Writer.WriteHeader(http.StatusNoContent)
}

// Recover responds to POST /devices/:serial/recover: it re-includes an
// unavailable or ignored device.
func (h ManagementController) Recover(c *gin.Context) {
	ctx := c.Request.Context()
	serial := c.Param("serial")

	err := h.app.RecoverDevice(ctx, serial)
	if err == app.ErrUnknownDevice {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	} else if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.Writer.WriteHeader(http.StatusNoContent)
}

// GetLastResult responds to GET /devices/:serial/result with the most
// recent command result recorded for the serial. A serial with no prior
// command yields the not-allocated status, not an error.
func (h ManagementController) GetLastResult(c *gin.Context) {
	ctx := c.Request.Context()
	serial := c.Param("serial")

	result, err := h.app.LastCommandResult(ctx, serial)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RecordResult responds to PUT /devices/:serial/result: the command
// executor reports the outcome of the command that ran on the device.
func (h ManagementController) RecordResult(c *gin.Context) {
	ctx := c.Request.Context()
	serial := c.Param("serial")

	result := model.CommandResult{}
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": errors.Wrap(err, "invalid payload").Error(),
		})
		return
	}

	if err := h.app.RecordCommandResult(ctx, serial, result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.Writer.WriteHeader(http.StatusNoContent)
}
