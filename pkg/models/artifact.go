package models

import (
	"path"
	"strings"
	"time"
)

// Artifact is one uploaded file, owned by the session that uploaded it.
// Tickets reference artifacts by id in their file fields.
type Artifact struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Mime      string    `json:"mime"`
	Size      int64     `json:"size"`
	Ref       string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Ext returns the lowercase filename extension without the dot, or "".
func (a *Artifact) Ext() string {
	ext := path.Ext(a.Name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
