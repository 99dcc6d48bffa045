package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/baogate/internal/agent"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /feed", s.handleFeed)
	mux.HandleFunc("POST /response", s.handleResponse)
	mux.HandleFunc("POST /revival", s.handleRevival)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	if s.enableWS {
		mux.HandleFunc("GET /ws", s.handleWebSocket)
	}

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up the WebSocket RPC methods.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("sessions.list", s.rpcSessionsList)
	s.Handle("feed", s.rpcFeed)
	s.Handle("respond", s.rpcRespond)
	s.Handle("revive", s.rpcRevive)
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs. Ctx ends when the
// connection closes or the request deadline passes.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message}); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error")
	}
}

// Fail maps a facade error onto an RPC error code.
func (rc *RequestContext) Fail(err error) {
	var v *agent.ValidationError
	switch {
	case errors.As(err, &v):
		rc.RespondError(CodeInvalidRequest, v.Message)
	case errors.Is(err, agent.ErrProvider):
		rc.RespondError(CodeProviderError, err.Error())
	default:
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("rpc failed")
		rc.RespondError(CodeInternalError, msgInternalError)
	}
}

// fields decodes params as a JSON object; absent params are an empty object.
func (rc *RequestContext) fields() (map[string]json.RawMessage, bool) {
	m, err := decodeObject(bytes.NewReader(rc.Frame.Params))
	if err != nil {
		rc.RespondError(CodeInvalidRequest, "params must be a JSON object")
		return nil, false
	}
	return m, true
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(s.health())
}

func (s *Server) rpcSessionsList(rc *RequestContext) {
	list, err := s.runner.Sessions().List()
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"sessions": list})
}

func (s *Server) rpcFeed(rc *RequestContext) {
	fields, ok := rc.fields()
	if !ok {
		return
	}
	if err := s.runner.Feed(rc.Ctx, s.utterance(fields)); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"message": msgFed})
}

func (s *Server) rpcRespond(rc *RequestContext) {
	fields, ok := rc.fields()
	if !ok {
		return
	}
	reply, err := s.runner.Respond(rc.Ctx, s.utterance(fields))
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{
		"text":       reply.Text,
		"timestamp":  reply.Timestamp.UnixMilli(),
		"sessionId":  reply.SessionID,
		"model":      reply.Model,
		"usage":      reply.Usage,
		"durationMs": reply.Duration.Milliseconds(),
	})
}

func (s *Server) rpcRevive(rc *RequestContext) {
	fields, ok := rc.fields()
	if !ok {
		return
	}
	req := revivalRequest(fields)
	n, err := s.revive(rc.Ctx, req)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{
		"message":           revivalMessage(req.ChannelID, n),
		"processedMessages": n,
	})
}
