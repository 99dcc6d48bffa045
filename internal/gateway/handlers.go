package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/soyeahso/baogate/internal/agent"
	"github.com/soyeahso/baogate/internal/domain"
)

const (
	msgFed             = "Message received and fed to model"
	msgInvalidRevival  = "Invalid request format. channelId and history array are required."
	msgInvalidJSON     = "Invalid JSON body"
	msgBodyTooLarge    = "request body too large"
	msgInternalError   = "internal server error"
	revivalMessageTmpl = "Successfully initialized chat for %s with %d messages from history."
)

// HealthResponse is returned by GET /health and the health RPC.
type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptimeSeconds"`
	Sessions      int                    `json:"sessions"`
	Clients       int                    `json:"clients"`
	Channels      []domain.ChannelStatus `json:"channels,omitempty"`
}

// statusBody is the common {status, message} envelope.
type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func errorBody(message string) statusBody {
	return statusBody{Status: "error", Message: message}
}

type replyBody struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type respondResponse struct {
	Status   string    `json:"status"`
	Response replyBody `json:"response"`
}

type revivalResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	ProcessedMessages int    `json:"processed_messages"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDecodeError answers a body that could not be read as a JSON object.
func writeDecodeError(w http.ResponseWriter, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(msgBodyTooLarge))
		return
	}
	writeJSON(w, http.StatusBadRequest, errorBody(message))
}

// writeRunnerError maps facade errors onto HTTP statuses.
func (s *Server) writeRunnerError(w http.ResponseWriter, r *http.Request, err error) {
	var v *agent.ValidationError
	switch {
	case errors.As(err, &v):
		writeJSON(w, http.StatusBadRequest, errorBody(v.Message))
	case errors.Is(err, agent.ErrProvider):
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody(msgInternalError))
	}
}

// requestContext bounds a request by the configured provider deadline.
func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.requestTimeout)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r.Body)
	if err != nil {
		writeDecodeError(w, err, msgInvalidJSON)
		return
	}
	u := s.utterance(fields)
	s.log.Debug().Str("channel", u.ChannelID).Str("author", u.AuthorName).Str("content", u.Content).Msg("feed request")

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	if err := s.runner.Feed(ctx, u); err != nil {
		s.writeRunnerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "success", Message: msgFed})
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r.Body)
	if err != nil {
		writeDecodeError(w, err, msgInvalidJSON)
		return
	}
	u := s.utterance(fields)
	s.log.Debug().Str("channel", u.ChannelID).Str("author", u.AuthorName).Str("content", u.Content).Msg("response request")

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	reply, err := s.runner.Respond(ctx, u)
	if err != nil {
		s.writeRunnerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respondResponse{
		Status:   "success",
		Response: replyBody{Text: reply.Text, Timestamp: reply.Timestamp.UnixMilli()},
	})
}

func (s *Server) handleRevival(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r.Body)
	if err != nil {
		writeDecodeError(w, err, msgInvalidRevival)
		return
	}
	req := revivalRequest(fields)
	s.log.Info().
		Str("channel", req.ChannelID).
		Str("room", req.RoomName).
		Int("historyLen", len(req.History)).
		Msg("revival request")

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	n, err := s.revive(ctx, req)
	if err != nil {
		s.writeRunnerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revivalResponse{
		Status:            "success",
		Message:           revivalMessage(req.ChannelID, n),
		ProcessedMessages: n,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.runner.Sessions().List()
	if err != nil {
		s.writeRunnerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "sessions": list})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"status":  "error",
		"message": "not found",
		"path":    r.URL.Path,
	})
}

func (s *Server) health() HealthResponse {
	h := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Clients:       s.clients.Count(),
	}
	if list, err := s.runner.Sessions().List(); err == nil {
		h.Sessions = len(list)
	} else {
		s.log.Warn().Err(err).Msg("listing sessions for health")
	}
	if s.channels != nil {
		h.Channels = s.channels.Status()
	}
	return h
}

// revive runs a revival and tells WebSocket clients about it.
func (s *Server) revive(ctx context.Context, req agent.RevivalRequest) (int, error) {
	n, err := s.runner.Revive(ctx, req)
	if err != nil {
		return 0, err
	}
	s.clients.Broadcast(EventSessionRevived, map[string]any{
		"channelId": req.ChannelID,
		"roomName":  req.RoomName,
		"turns":     n,
	}, s.eventSeq.Add(1))
	return n, nil
}

func revivalMessage(channelID string, n int) string {
	return fmt.Sprintf(revivalMessageTmpl, channelID, n)
}

// utterance reads a feed/response body, applying the channel default.
// An absent author is filled in by the runner.
func (s *Server) utterance(fields map[string]json.RawMessage) domain.Utterance {
	u := domain.Utterance{
		ChannelID:  idField(fields, "channelId"),
		AuthorName: stringField(fields, "authorName"),
		Content:    stringField(fields, "content"),
		Timestamp:  timeField(fields["timestamp"]),
	}
	if u.ChannelID == "" {
		u.ChannelID = s.defaultChannel
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}
	return u
}

// revivalRequest reads a revival body. A history that is missing or not an
// array yields a nil History, which the runner rejects.
func revivalRequest(fields map[string]json.RawMessage) agent.RevivalRequest {
	return agent.RevivalRequest{
		ChannelID: idField(fields, "channelId"),
		RoomName:  stringField(fields, "roomName"),
		History:   parseHistory(fields["history"]),
	}
}

// parseHistory decodes history entries leniently: entries that are not
// objects, or whose content is not a string, come back with empty content
// and are dropped by the normalizer.
func parseHistory(raw json.RawMessage) []domain.HistoryMessage {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil
	}

	out := make([]domain.HistoryMessage, 0, len(items))
	for _, item := range items {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(item, &m); err != nil {
			out = append(out, domain.HistoryMessage{})
			continue
		}
		identity := stringField(m, "authorIdentity")
		if identity == "" {
			identity = stringField(m, "authorHash")
		}
		out = append(out, domain.HistoryMessage{
			AuthorName:     stringField(m, "authorName"),
			AuthorIdentity: identity,
			Content:        stringField(m, "content"),
			Timestamp:      timeField(m["timestamp"]),
		})
	}
	return out
}

// decodeObject reads a JSON object body. An empty body is an empty object.
func decodeObject(body io.Reader) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if body == nil {
		return fields, nil
	}
	err := json.NewDecoder(body).Decode(&fields)
	if errors.Is(err, io.EOF) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if fields == nil {
		// A literal null body.
		fields = map[string]json.RawMessage{}
	}
	return fields, nil
}

// stringField returns the string at key, or "" if absent or not a string.
func stringField(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// idField is stringField that also accepts a JSON number, spelled the way a
// JavaScript client would stringify it (7 → "7", 1.5 → "1.5").
func idField(m map[string]json.RawMessage, key string) string {
	if s := stringField(m, key); s != "" {
		return s
	}
	var n float64
	if err := json.Unmarshal(m[key], &n); err != nil {
		return ""
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// timeField accepts epoch milliseconds or an RFC 3339 string.
func timeField(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
