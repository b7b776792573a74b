package database

import "time"

type User struct {
	Id           string
	Username     string
	EmailAddress string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Conversation struct {
	Id           string
	Name         string
	Private      bool
	Participants []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Message struct {
	Id             string
	ConversationId string
	SenderId       string
	Content        string
	CreatedAt      time.Time
}

type CreateConversationParams struct {
	Name         string   `json:"name"`
	Private      bool     `json:"private"`
	Participants []string `json:"participants"`
}
