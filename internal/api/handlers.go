package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/syncline-chat/syncline/internal/database"
	"github.com/syncline-chat/syncline/internal/metrics"
	"github.com/syncline-chat/syncline/internal/types"
)

type CreateConversationRequest struct {
	OtherUserId string `json:"other_user_id"`
	Name        string `json:"name"`
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// createConversation creates the private conversation between the caller
// and the named peer, returning the existing one when the pair already
// has one. A newly created conversation is dispatched to the new
// participants' personal rooms and to the conversation room itself.
func (s *ChatApp) createConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OtherUserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	existing, err := s.db.FindPrivateConversation(userId, req.OtherUserId)
	if err == nil {
		s.writeJson(w, http.StatusOK, toWireConversation(existing))
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convo, err := s.db.CreateConversation(database.CreateConversationParams{
		Name:         req.Name,
		Private:      true,
		Participants: []string{userId, req.OtherUserId},
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.Dispatcher().ConversationCreated(toWireConversation(convo))

	s.writeJson(w, http.StatusCreated, toWireConversation(convo))
}

// getConversation returns a single conversation. Callers only ever see
// conversations they participate in; anything else is forbidden.
func (s *ChatApp) getConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convo, err := s.db.GetConversation(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !slices.Contains(convo.Participants, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toWireConversation(convo))
}

func (s *ChatApp) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convos, err := s.db.ListConversations(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out := make([]types.Conversation, len(convos))
	for i, convo := range convos {
		out[i] = toWireConversation(convo)
	}
	s.writeJson(w, http.StatusOK, out)
}

// postMessage is the send path: the message is durably appended before
// any broadcast goes out, so a persistence failure produces a retryable
// error and no partial fan-out. The client rolls back its provisional
// entry on failure.
func (s *ChatApp) postMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.CreateMessage(conversationId, userId, req.Content)
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, database.ErrValidation):
			errResp = NewBadRequestError()
		case errors.Is(err, database.ErrNotFound):
			errResp = NewNotFoundError()
		default:
			errResp = NewServiceUnavailableError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	metrics.MessagesPersisted.Inc()

	if err := s.db.TouchConversation(conversationId, msg.CreatedAt); err != nil {
		// sidebar ordering lags one message; the send already succeeded
		s.log.Printf("touch conversation %q: %v", conversationId, err)
	}

	s.cs.Dispatcher().MessageCreated(toWireMessage(msg))

	s.writeJson(w, http.StatusCreated, toWireMessage(msg))
}

// getMessages serves paged history: keyset pagination newest first, the
// cursor being the last-seen message id.
func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")

	opts := database.MessageRange{
		BeforeId: r.URL.Query().Get("cursor"),
	}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		// non-numeric limits fall through to the default
		if limit, err := strconv.Atoi(limitParam); err == nil {
			opts.Limit = limit
		}
	}

	msgs, err := s.db.MessagesByConversation(conversationId, opts)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out := make([]types.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = toWireMessage(msg)
	}
	s.writeJson(w, http.StatusOK, out)
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("ws upgrade: %v", err)
		return
	}

	go s.cs.Serve(types.User{Id: userId}, conn)
}

func toWireConversation(convo database.Conversation) types.Conversation {
	return types.Conversation{
		Id:           convo.Id,
		Name:         convo.Name,
		Private:      convo.Private,
		Participants: convo.Participants,
		CreatedAt:    convo.CreatedAt,
		UpdatedAt:    convo.UpdatedAt,
	}
}

func toWireMessage(msg database.Message) types.Message {
	return types.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
}
