package http

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/chat"
	"github.com/samueltorres/r8views/pkg/engine"
	"github.com/samueltorres/r8views/pkg/views"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type messageResponse struct {
	Replies []string `json:"replies"`
}

type outboxResponse struct {
	Messages []string `json:"messages"`
}

type proxiesResponse struct {
	Proxies []string `json:"proxies"`
	Total   int      `json:"total"`
}

type batchRequest struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

type batchResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status, err := s.engine.Status(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var msg chat.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		s.writeError(w, r, &views.ValidationError{Field: "body", Reason: "expected a json message"})
		return
	}

	replies, err := s.conversation.Handle(r.Context(), ps.ByName("id"), msg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Replies: replies})
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.writeJSON(w, http.StatusOK, outboxResponse{Messages: s.mailbox.Drain(ps.ByName("id"))})
}

func (s *Server) handleListProxies(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	list, err := s.engine.ListProxies(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res := proxiesResponse{Proxies: make([]string, len(list)), Total: len(list)}
	for i, p := range list {
		res.Proxies[i] = p.String()
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAddProxies(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	body, err := ioutil.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, &views.ValidationError{Field: "body", Reason: "could not read body"})
		return
	}

	res, err := s.engine.AddProxies(r.Context(), ps.ByName("id"), string(body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClearProxies(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.engine.ClearProxies(r.Context(), ps.ByName("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req batchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, &views.ValidationError{Field: "body", Reason: "expected {\"url\", \"count\"}"})
		return
	}

	id := ps.ByName("id")
	batchID, err := s.engine.Submit(r.Context(), id, req.URL, req.Count, s.conversation.NotifyCompletion(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, batchResponse{ID: batchID})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("could not encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *views.ValidationError

	res := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		res.Field = verr.Field
	case errors.Is(err, engine.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrBatchInProgress):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	s.writeJSON(w, status, res)
}
