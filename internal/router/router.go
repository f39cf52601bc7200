// Package router turns decoded requests into State Manager and Process
// Registry calls. Every failure comes back as an error response.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/AaronLay10/Haeccstable/internal/registry"
	"github.com/AaronLay10/Haeccstable/internal/state"
	"github.com/rs/zerolog/log"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one wire message. Data is decoded by the handler for Type.
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is one wire reply.
type Response struct {
	Status  string         `json:"status"`
	Type    string         `json:"type,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	State   *state.Summary `json:"state,omitempty"`
	Result  interface{}    `json:"result,omitempty"`
}

// OK reports whether the response is a success.
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// ErrorResponse builds an error reply for the given request type.
func ErrorResponse(typ string, err error) Response {
	return Response{Status: StatusError, Type: typ, Error: err.Error()}
}

var (
	ErrMissingType = errors.New("missing 'type' field in message")
	ErrBadRequest  = errors.New("invalid request")
)

type handlerFunc func(data json.RawMessage) (Response, error)

// Router dispatches requests by type. It keeps no entity state of its own.
type Router struct {
	state    *state.Manager
	registry *registry.Registry
	handlers map[string]handlerFunc

	requests atomic.Int64
	failures atomic.Int64

	mu     sync.Mutex
	byType map[string]int64
}

func New(st *state.Manager, reg *registry.Registry) *Router {
	if reg == nil {
		reg = registry.New(nil)
	}
	r := &Router{
		state:    st,
		registry: reg,
		byType:   make(map[string]int64),
	}
	r.handlers = map[string]handlerFunc{
		"declare_variable":    r.handleDeclareVariable,
		"call_function":       r.handleCallFunction,
		"call_process":        r.handleCallProcess,
		"method_call":         r.handleMethodCall,
		"property_assignment": r.handlePropertyAssignment,
		"define_function":     r.handleDefineFunction,
		"define_process":      r.handleDefineProcess,
		"get_state":           r.handleGetState,
		"reset_state":         r.handleResetState,
		"ping":                r.handlePing,
		"remove_variable":     r.handleRemoveVariable,
		"remove_function":     r.handleRemoveFunction,
		"remove_process":      r.handleRemoveProcess,
		"stop_process":        r.handleStopProcess,
		"list_builtins":       r.handleListBuiltins,
	}
	return r
}

// Commands returns the supported request types, sorted.
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RouteBytes decodes one framed message and routes it.
func (r *Router) RouteBytes(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		r.requests.Add(1)
		r.failures.Add(1)
		log.Warn().Err(err).Msg("rejected undecodable message")
		return ErrorResponse("", fmt.Errorf("invalid JSON: %v", err))
	}
	return r.Route(req)
}

// Route dispatches a decoded request. It never panics.
func (r *Router) Route(req Request) (resp Response) {
	r.requests.Add(1)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("type", req.Type).Msg("handler panicked")
			resp = ErrorResponse(req.Type, fmt.Errorf("internal error handling %s", req.Type))
		}
		if !resp.OK() {
			r.failures.Add(1)
		}
	}()

	if req.Type == "" {
		return ErrorResponse("", ErrMissingType)
	}
	h, ok := r.handlers[req.Type]
	if !ok {
		log.Warn().Str("type", req.Type).Msg("unknown message type")
		return ErrorResponse(req.Type, fmt.Errorf("unknown message type: %s", req.Type))
	}

	r.mu.Lock()
	r.byType[req.Type]++
	r.mu.Unlock()

	log.Debug().Str("type", req.Type).RawJSON("data", rawOrNull(req.Data)).Msg("routing message")
	resp, err := h(req.Data)
	if err != nil {
		log.Warn().Err(err).Str("type", req.Type).Msg("request rejected")
		return ErrorResponse(req.Type, err)
	}
	resp.Status = StatusSuccess
	if resp.Type == "" {
		resp.Type = req.Type
	}
	return resp
}

// Stats counts routed requests.
type Stats struct {
	Requests int64            `json:"requests"`
	Failures int64            `json:"failures"`
	ByType   map[string]int64 `json:"by_type"`
}

func (r *Router) Stats() Stats {
	r.mu.Lock()
	byType := make(map[string]int64, len(r.byType))
	for k, v := range r.byType {
		byType[k] = v
	}
	r.mu.Unlock()
	return Stats{
		Requests: r.requests.Load(),
		Failures: r.failures.Load(),
		ByType:   byType,
	}
}

// decode unmarshals data into v. Absent data decodes as an empty object.
func decode(typ string, data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: invalid %s data: %v", ErrBadRequest, typ, err)
	}
	return nil
}

func missing(typ, field string) error {
	return fmt.Errorf("%w: %s requires '%s'", ErrBadRequest, typ, field)
}

func rawOrNull(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
