// Package mcp implements the MCP envelope protocol for the crypto price
// service: message types, the closed error-code set, envelope constructors
// and the action dispatcher.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates the envelope payload shape.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeResponse     MessageType = "response"
	TypeError        MessageType = "error"
	TypeNotification MessageType = "notification"
)

// ErrorCode is one of the protocol's closed error code set.
type ErrorCode int

const (
	CodeUnknownError        ErrorCode = 1000
	CodeInvalidRequest      ErrorCode = 1001
	CodeServiceUnavailable  ErrorCode = 1002
	CodeResourceNotFound    ErrorCode = 1003
	CodeRateLimited         ErrorCode = 1004 // reserved
	CodeInvalidParameter    ErrorCode = 1005
	CodeAuthenticationError ErrorCode = 1006 // reserved
)

const (
	// ProtocolVersion is the supported MCP protocol version.
	ProtocolVersion = "1.0"
	// ServiceName identifies this service in envelope metadata.
	ServiceName = "zkom.crypto.price"
	// DefaultTTL is the metadata TTL in seconds.
	DefaultTTL = 60
	// DefaultCacheControl is the metadata cache directive.
	DefaultCacheControl = "public, max-age=60"
)

// Context carries per-message correlation data.
type Context struct {
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// Metadata carries protocol and caching information.
type Metadata struct {
	Version      string `json:"version"`
	Service      string `json:"service"`
	Source       string `json:"source,omitempty"`
	TTL          int    `json:"ttl,omitempty"`
	CacheControl string `json:"cache_control,omitempty"`
}

// ErrorInfo describes a protocol error.
type ErrorInfo struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Request is an inbound envelope naming an action and its parameters.
type Request struct {
	Type       MessageType    `json:"type"`
	Context    Context        `json:"context"`
	Metadata   Metadata       `json:"metadata"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// Response is a successful reply envelope.
type Response struct {
	Type     MessageType       `json:"type"`
	Context  Context           `json:"context"`
	Metadata Metadata          `json:"metadata"`
	Data     any               `json:"data"`
	Links    map[string]string `json:"links,omitempty"`
}

// ErrorResponse is a failed reply envelope.
type ErrorResponse struct {
	Type     MessageType `json:"type"`
	Context  Context     `json:"context"`
	Metadata Metadata    `json:"metadata"`
	Error    ErrorInfo   `json:"error"`
}

// Notification is a server-originated event envelope.
type Notification struct {
	Type     MessageType `json:"type"`
	Context  Context     `json:"context"`
	Metadata Metadata    `json:"metadata"`
	Event    string      `json:"event"`
	Data     any         `json:"data"`
}

// Message is any envelope that can be written to the wire.
type Message interface {
	MessageType() MessageType
}

func (r Request) MessageType() MessageType { return TypeRequest }

func (r *Response) MessageType() MessageType { return TypeResponse }

func (e *ErrorResponse) MessageType() MessageType { return TypeError }

func (n *Notification) MessageType() MessageType { return TypeNotification }

// NewContext builds a message context, generating a request id when the
// caller did not supply one.
func NewContext(requestID string) Context {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return Context{
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewMetadata builds this service's reply metadata.
func NewMetadata() Metadata {
	return Metadata{
		Version:      ProtocolVersion,
		Service:      ServiceName,
		TTL:          DefaultTTL,
		CacheControl: DefaultCacheControl,
	}
}

// NewRequest builds a request envelope for action. Used by clients; the
// request id is generated when absent.
func NewRequest(action string, parameters map[string]any, requestID string) Request {
	if parameters == nil {
		parameters = map[string]any{}
	}
	return Request{
		Type:       TypeRequest,
		Context:    NewContext(requestID),
		Metadata:   NewMetadata(),
		Action:     action,
		Parameters: parameters,
	}
}

// NewResponse wraps data in a response envelope. The request's context is
// carried over verbatim so request_id and timestamp survive the round trip.
func NewResponse(data any, ctx Context) *Response {
	return &Response{
		Type:     TypeResponse,
		Context:  ctx,
		Metadata: NewMetadata(),
		Data:     data,
	}
}

// NewErrorResponse wraps an error in an error envelope. When replying to a
// request, ctx is the request's context; server-originated errors pass a
// fresh one from NewContext.
func NewErrorResponse(code ErrorCode, message string, details map[string]any, ctx Context) *ErrorResponse {
	return &ErrorResponse{
		Type:     TypeError,
		Context:  ctx,
		Metadata: NewMetadata(),
		Error: ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewNotification builds a server-originated event envelope.
func NewNotification(event string, data any) *Notification {
	return &Notification{
		Type:     TypeNotification,
		Context:  NewContext(""),
		Metadata: NewMetadata(),
		Event:    event,
		Data:     data,
	}
}

// DecodeRequest parses and validates a request envelope. A missing action is
// a decode error; parameters default to empty and absent context fields are
// filled in so every decoded request carries a usable correlation context.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode request envelope: %w", err)
	}
	if req.Type == "" {
		req.Type = TypeRequest
	}
	if req.Type != TypeRequest {
		return Request{}, fmt.Errorf("unexpected message type %q", req.Type)
	}
	if req.Action == "" {
		return Request{}, fmt.Errorf("missing required field: action")
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}
	if req.Context.RequestID == "" {
		req.Context.RequestID = uuid.NewString()
	}
	if req.Context.Timestamp == 0 {
		req.Context.Timestamp = time.Now().UnixMilli()
	}
	return req, nil
}
