package models

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BreadcrumbPrefix marks internal system rows recorded after a successful
// tool action. Breadcrumbs are kept in the routing transcript so the picker
// can detect an in-progress flow, and dropped everywhere else.
const BreadcrumbPrefix = "TOOL:"

// Message is one row of a session's conversation history.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// IsBreadcrumb reports whether the message is an internal tool breadcrumb.
func (m *Message) IsBreadcrumb() bool {
	return m.Role == RoleSystem && len(m.Content) >= len(BreadcrumbPrefix) &&
		m.Content[:len(BreadcrumbPrefix)] == BreadcrumbPrefix
}
