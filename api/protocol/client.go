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

package protocol

import (
	"bufio"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Client is a synchronous protocol client: one request, one response per
// Do call. It is not safe for concurrent use.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to a remote hub.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: failed to connect")
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Do sends one request and decodes the response.
func (c *Client) Do(req *Request) (*Response, error) {
	data, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	if _, err = c.conn.Write(data); err != nil {
		return nil, errors.Wrap(err, "protocol: failed to send request")
	}
	frame, err := ReadFrame(c.reader)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: failed to read response")
	}
	return DecodeResponse(frame)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
