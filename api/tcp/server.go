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

// Package tcp serves the line-framed control protocol over a local
// socket, one goroutine per connection. Protocol decode and encode never
// hold the pool lock; only the dispatched operation does.
package tcp

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mendersoftware/go-lib-micro/log"

	"github.com/testfarm/devicehub/api/protocol"
	"github.com/testfarm/devicehub/app"
	"github.com/testfarm/devicehub/model"
)

// Config holds the server parameters.
type Config struct {
	// AllocateTimeout bounds the wait of a remote allocate request so a
	// contended pool cannot hang a connection forever.
	AllocateTimeout time.Duration
}

// Server accepts control protocol connections and dispatches decoded
// operations against the hub.
type Server struct {
	hub  app.App
	conf Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	closing  bool

	wg sync.WaitGroup
}

// NewServer returns a protocol server for the hub.
func NewServer(hub app.App, conf Config) *Server {
	if conf.AllocateTimeout <= 0 {
		conf.AllocateTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		hub:    hub,
		conf:   conf,
		ctx:    ctx,
		cancel: cancel,
	}
}

// ListenAndServe listens on addr and serves until Shutdown or a Close
// operation.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections on the listener until it is closed, then
// waits for in-flight connections to finish.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	closing := s.closing
	s.mu.Unlock()
	if closing {
		listener.Close()
		return nil
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing = s.closing
			s.mu.Unlock()
			s.wg.Wait()
			if closing {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Shutdown stops accepting new connections and cancels pending
// allocation waits. In-flight connections are drained by Serve.
func (s *Server) Shutdown() {
	s.cancel()
	s.stopAccepting()
}

// stopAccepting closes the listener without cancelling the server
// context, so requests already in flight run to completion.
func (s *Server) stopAccepting() {
	s.mu.Lock()
	s.closing = true
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	l := log.FromContext(s.ctx)
	defer s.wg.Done()
	defer conn.Close()
	defer func() {
		// A misbehaving connection must never take down the process.
		if r := recover(); r != nil {
			l.Errorf("panic serving %s: %v", conn.RemoteAddr(), r)
		}
	}()

	reader := bufio.NewReader(conn)
	for {
		frame, err := protocol.ReadFrame(reader)
		if err != nil {
			if err != io.EOF {
				l.Debugf("connection %s read error: %s",
					conn.RemoteAddr(), err.Error())
			}
			return
		}
		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			// Reply with a decode error when the broken message still
			// carried a recognizable type, then drop the connection.
			if opType, ok := protocol.PeekType(frame); ok {
				s.write(conn, &protocol.Response{
					Type:   opType,
					Status: model.StatusInvocationFailed,
					Error:  err.Error(),
				})
			}
			l.Warnf("connection %s: %s", conn.RemoteAddr(), err.Error())
			return
		}

		resp, closeRequested := s.dispatch(req)
		if !s.write(conn, resp) {
			return
		}
		if closeRequested {
			s.stopAccepting()
			return
		}
	}
}

func (s *Server) write(conn net.Conn, resp *protocol.Response) bool {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		log.FromContext(s.ctx).Errorf(
			"failed to encode response: %s", err.Error())
		return false
	}
	if _, err = conn.Write(data); err != nil {
		log.FromContext(s.ctx).Debugf(
			"connection %s write error: %s",
			conn.RemoteAddr(), err.Error())
		return false
	}
	return true
}

func (s *Server) dispatch(req *protocol.Request) (*protocol.Response, bool) {
	resp := &protocol.Response{
		Type:   req.Type,
		Status: model.StatusInvocationSuccess,
	}
	switch req.Type {
	case protocol.TypeAllocateDevice:
		device, err := s.hub.AllocateDeviceWait(
			s.ctx, req.Criteria, s.conf.AllocateTimeout)
		if err == app.ErrNoMatchingDevice {
			resp.Status = model.StatusNoMatch
		} else if err != nil {
			resp.Status = model.StatusInvocationFailed
			resp.Error = err.Error()
		} else {
			resp.Serial = device.Serial
			resp.AllocationID = device.AllocationID
		}
	case protocol.TypeFreeDevice:
		err := s.hub.FreeDevice(s.ctx, req.Serial, req.FreeDeviceState)
		if err != nil {
			resp.Status = model.StatusInvocationFailed
			resp.Error = err.Error()
		} else {
			resp.Serial = req.Serial
			resp.FreeDeviceState = req.FreeDeviceState
		}
	case protocol.TypeListDevices:
		devices, err := s.hub.ListDevices(s.ctx)
		if err != nil {
			resp.Status = model.StatusInvocationFailed
			resp.Error = err.Error()
		} else {
			resp.Devices = devices
		}
	case protocol.TypeGetLastCommandResult:
		result, err := s.hub.LastCommandResult(s.ctx, req.Serial)
		if err != nil {
			resp.Status = model.StatusInvocationFailed
			resp.Error = err.Error()
		} else {
			resp.Status = result.Status
			resp.Error = result.ErrorDetail
			resp.FreeDeviceState = result.FreeDeviceState
		}
	case protocol.TypeClose:
		return resp, true
	}
	return resp, false
}
