package models

import "time"

// Session is one end-user conversation.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// User is the authenticated principal embedded in access tokens.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Guest bool   `json:"guest,omitempty"`
}
