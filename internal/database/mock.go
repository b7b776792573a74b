package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatRepository) GetConversation(id string) (Conversation, error) {
	args := m.Called(id)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatRepository) FindPrivateConversation(userA, userB string) (Conversation, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatRepository) ListConversations(userId string) ([]Conversation, error) {
	args := m.Called(userId)
	return args.Get(0).([]Conversation), args.Error(1)
}
func (m *MockChatRepository) Participants(conversationId string) ([]string, error) {
	args := m.Called(conversationId)
	if userIds, ok := args.Get(0).([]string); ok {
		return userIds, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) CreateMessage(conversationId, senderId, content string) (Message, error) {
	args := m.Called(conversationId, senderId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MessagesByConversation(conversationId string, opts MessageRange) ([]Message, error) {
	args := m.Called(conversationId, opts)
	if messages, ok := args.Get(0).([]Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) TouchConversation(conversationId string, ts time.Time) error {
	args := m.Called(conversationId, ts)
	return args.Error(0)
}
