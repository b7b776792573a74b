package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/syncline-chat/syncline/internal/config"
	"github.com/syncline-chat/syncline/internal/database"
	"github.com/syncline-chat/syncline/internal/server"
	"github.com/syncline-chat/syncline/internal/testutil"
	"github.com/syncline-chat/syncline/internal/types"
)

var testSigningKey = []byte("test-signing-key")

func newTestApp(t *testing.T, db database.ChatRepository) *ChatApp {
	logger := testutil.TestLogger(t)
	cs := server.NewChatServer(logger, db)

	cfg := &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: testSigningKey,
	}

	return NewChatApp(http.NewServeMux(), logger, cs, db, cfg)
}

func tokenFor(t *testing.T, userId string) *http.Cookie {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userId})
	signed, err := token.SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return &http.Cookie{Name: tokenCookieKey, Value: signed}
}

func doRequest(app *ChatApp, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		db := &database.MockChatRepository{}
		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		db := &database.MockChatRepository{}
		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "not-a-jwt"})
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with the wrong key", func(t *testing.T) {
		db := &database.MockChatRepository{}
		app := newTestApp(t, db)

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
		signed, err := token.SignedString([]byte("some-other-key"))
		assert.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: signed})
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPostMessage(t *testing.T) {
	t.Run("persists then fans out", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		created := database.Message{
			Id:             "m1",
			ConversationId: "c1",
			SenderId:       "u1",
			Content:        "hi",
			CreatedAt:      time.Now().UTC().Round(time.Millisecond),
		}
		db.On("CreateMessage", "c1", "u1", "hi").Return(created, nil)
		db.On("TouchConversation", "c1", created.CreatedAt).Return(nil)
		db.On("Participants", "c1").Return([]string{"u1", "u2"}, nil)

		body, _ := json.Marshal(PostMessageRequest{Content: "hi"})
		req := httptest.NewRequest(http.MethodPost, "/api/conversations/c1/messages", bytes.NewReader(body))
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var msg types.Message
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
		assert.Equal(t, "m1", msg.Id)
		assert.Equal(t, "u1", msg.SenderId)
	})

	t.Run("empty content", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("CreateMessage", "c1", "u1", "").Return(database.Message{}, database.ErrValidation)

		body, _ := json.Marshal(PostMessageRequest{Content: ""})
		req := httptest.NewRequest(http.MethodPost, "/api/conversations/c1/messages", bytes.NewReader(body))
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("CreateMessage", "nope", "u1", "hi").Return(database.Message{}, database.ErrNotFound)

		body, _ := json.Marshal(PostMessageRequest{Content: "hi"})
		req := httptest.NewRequest(http.MethodPost, "/api/conversations/nope/messages", bytes.NewReader(body))
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store unavailable is retryable and nothing is broadcast", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("CreateMessage", "c1", "u1", "hi").Return(database.Message{}, errors.New("connection refused"))

		body, _ := json.Marshal(PostMessageRequest{Content: "hi"})
		req := httptest.NewRequest(http.MethodPost, "/api/conversations/c1/messages", bytes.NewReader(body))
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		db.AssertNotCalled(t, "Participants", mock.Anything)
	})
}

func TestGetMessages(t *testing.T) {
	t.Run("default page", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("MessagesByConversation", "c1", database.MessageRange{}).
			Return([]database.Message{{Id: "m2"}, {Id: "m1"}}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1/messages", nil)
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var msgs []types.Message
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
		assert.Len(t, msgs, 2)
		assert.Equal(t, "m2", msgs[0].Id, "expected newest first")
	})

	t.Run("cursor and limit", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("MessagesByConversation", "c1", database.MessageRange{BeforeId: "m50", Limit: 10}).
			Return([]database.Message{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1/messages?cursor=m50&limit=10", nil)
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-numeric limit falls back to default", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("MessagesByConversation", "c1", database.MessageRange{}).
			Return([]database.Message{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1/messages?limit=lots", nil)
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCreateConversation(t *testing.T) {
	t.Run("returns the existing private conversation", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		existing := database.Conversation{Id: "c1", Private: true, Participants: []string{"u1", "u2"}}
		db.On("FindPrivateConversation", "u1", "u2").Return(existing, nil)

		body, _ := json.Marshal(CreateConversationRequest{OtherUserId: "u2"})
		req := httptest.NewRequest(http.MethodPost, "/api/conversations", bytes.NewReader(body))
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		db.AssertNotCalled(t, "CreateConversation", mock.Anything)
	})

	t.Run("creates and dispatches a new conversation", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("FindPrivateConversation", "u1", "u2").Return(database.Conversation{}, database.ErrNotFound)
		db.On("CreateConversation", database.CreateConversationParams{
			Private:      true,
			Participants: []string{"u1", "u2"},
		}).Return(database.Conversation{Id: "c9", Private: true, Participants: []string{"u1", "u2"}}, nil)

		body, _ := json.Marshal(CreateConversationRequest{OtherUserId: "u2"})
		req := httptest.NewRequest(http.MethodPost, "/api/conversations", bytes.NewReader(body))
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var convo types.Conversation
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&convo))
		assert.Equal(t, "c9", convo.Id)
	})

	t.Run("missing peer", func(t *testing.T) {
		db := &database.MockChatRepository{}
		app := newTestApp(t, db)

		body, _ := json.Marshal(CreateConversationRequest{})
		req := httptest.NewRequest(http.MethodPost, "/api/conversations", bytes.NewReader(body))
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetConversation(t *testing.T) {
	t.Run("participant sees the conversation", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("GetConversation", "c1").Return(database.Conversation{
			Id:           "c1",
			Private:      true,
			Participants: []string{"u1", "u2"},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1", nil)
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var convo types.Conversation
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&convo))
		assert.Equal(t, "c1", convo.Id)
	})

	t.Run("non-participant is forbidden", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("GetConversation", "c1").Return(database.Conversation{
			Id:           "c1",
			Participants: []string{"u2", "u3"},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1", nil)
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		app := newTestApp(t, db)

		db.On("GetConversation", "nope").Return(database.Conversation{}, database.ErrNotFound)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/nope", nil)
		req.AddCookie(tokenFor(t, "u1"))
		rec := doRequest(app, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListConversations(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	app := newTestApp(t, db)

	db.On("ListConversations", "u1").Return([]database.Conversation{
		{Id: "c2", UpdatedAt: time.Now()},
		{Id: "c1"},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.AddCookie(tokenFor(t, "u1"))
	rec := doRequest(app, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var convos []types.Conversation
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&convos))
	assert.Len(t, convos, 2)
	assert.Equal(t, "c2", convos[0].Id, "expected most recently updated first")
}
