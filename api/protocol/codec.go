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
	"bytes"
	"encoding/json"
	stderrors "errors"

	"github.com/pkg/errors"
)

// DecodeError marks a malformed or version-mismatched wire message. It is
// isolated to the connection that produced it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "protocol: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErrorf(format string, args ...interface{}) error {
	return &DecodeError{Err: errors.Errorf(format, args...)}
}

// IsDecodeError returns true if err stems from decoding a wire message.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return stderrors.As(err, &decodeErr)
}

// EncodeRequest serializes one request as a newline-terminated JSON
// object.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, "protocol: invalid request")
	}
	return appendFrame(req)
}

// DecodeRequest parses one framed request. Unrecognized operation types
// are rejected before dispatch.
func DecodeRequest(data []byte) (*Request, error) {
	req := &Request{}
	if err := json.Unmarshal(bytes.TrimSpace(data), req); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := req.Validate(); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return req, nil
}

// EncodeResponse serializes one response as a newline-terminated JSON
// object. Fields that do not apply to the operation are omitted.
func EncodeResponse(resp *Response) ([]byte, error) {
	if err := resp.Validate(); err != nil {
		return nil, errors.Wrap(err, "protocol: invalid response")
	}
	return appendFrame(resp)
}

// DecodeResponse parses one framed response. A missing or unrecognized
// status, state or type value is a hard decode failure, never a silently
// coerced default.
func DecodeResponse(data []byte) (*Response, error) {
	resp := &Response{}
	if err := json.Unmarshal(bytes.TrimSpace(data), resp); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := resp.Validate(); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return resp, nil
}

// PeekType extracts the operation type of a framed message without fully
// decoding it, so error responses can echo the type of broken requests.
func PeekType(data []byte) (OperationType, bool) {
	var envelope struct {
		Type OperationType `json:"type"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &envelope); err != nil {
		return "", false
	}
	return envelope.Type, envelope.Type.Valid()
}

// ReadFrame reads one newline-delimited message. io.EOF is returned
// unwrapped when the peer closed the connection cleanly.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if len(line) > 0 && err == nil {
		return line, nil
	}
	if len(bytes.TrimSpace(line)) > 0 {
		// Partial line before EOF still counts as a message.
		return line, nil
	}
	return nil, err
}

func appendFrame(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: failed to encode message")
	}
	return append(data, '\n'), nil
}
