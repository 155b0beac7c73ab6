package models

import (
	"slices"
	"time"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVideo = "video"
)

var MessageTypes = []string{MessageTypeText, MessageTypeImage, MessageTypeVideo}

type Chat struct {
	ID                string    `db:"id"`
	Members           []string  `db:"members"`
	LastMessage       string    `db:"last_message"`
	LastMessageSender string    `db:"last_message_sender"`
	LastMessageType   string    `db:"last_message_type"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (c *Chat) HasMember(accountID string) bool {
	return slices.Contains(c.Members, accountID)
}

// Clone returns a deep copy so callers cannot alias store-owned slices.
func (c *Chat) Clone() *Chat {
	cp := *c
	cp.Members = slices.Clone(c.Members)
	return &cp
}

type MemberSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	PhoneNumber    string `json:"phoneNumber"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type SenderSummary struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ChatView is a chat with its members and last sender resolved to account summaries.
type ChatView struct {
	ID                string          `json:"id"`
	Members           []MemberSummary `json:"members"`
	LastMessage       string          `json:"lastMessage,omitempty"`
	LastMessageSender *SenderSummary  `json:"lastMessageSender,omitempty"`
	LastMessageType   string          `json:"lastMessageType"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}
