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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mendersoftware/go-lib-micro/log"
	natsio "github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/testfarm/devicehub/client/nats"
	"github.com/testfarm/devicehub/model"
)

var (
	// WebsocketReadBufferSize is the size of the reading buffer
	WebsocketReadBufferSize = 1024
	// WebsocketWriteBufferSize is the size of the writing buffer
	WebsocketWriteBufferSize = 1024

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = time.Minute
)

const eventChannelSize = 25

// EventsController streams device state change events to websocket
// subscribers. Events arrive from the pool via NATS msgpack-encoded; the
// payload is forwarded as-is.
type EventsController struct {
	nats nats.Client
}

// NewEventsController returns a new EventsController
func NewEventsController(nc nats.Client) *EventsController {
	return &EventsController{nats: nc}
}

// Subscribe responds to GET /events by upgrading the request to a
// websocket and forwarding every device state change until the client
// goes away.
func (h EventsController) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.FromContext(ctx)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  WebsocketReadBufferSize,
		WriteBufferSize: WebsocketWriteBufferSize,
		Subprotocols:    []string{"protomsg/msgpack"},
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		err = errors.Wrap(err,
			"unable to upgrade the request to websocket protocol")
		l.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed to upgrade the request to websocket protocol",
		})
		return
	}
	defer conn.Close()

	eventChan := make(chan *natsio.Msg, eventChannelSize)
	sub, err := h.nats.ChanSubscribe(model.SubjectDevices, eventChan)
	if err != nil {
		l.Error(errors.Wrap(err, "failed to subscribe to device events"))
		return
	}
	//nolint:errcheck
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		// Keep reading to service the pong handler and detect the
		// client going away.
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = conn.SetReadDeadline(time.Now().Add(pongWait))
	if err != nil {
		l.Error(err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingPeriod := (pongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-eventChan:
			err := conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(websocket.BinaryMessage, msg.Data)
			}
			if err != nil {
				l.Debugf("websocket write failed: %s", err.Error())
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(writeWait),
			); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
