package models

import "time"

// FieldKind enumerates the supported ticket field types.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldEnum   FieldKind = "enum"
	FieldNumber FieldKind = "number"
	FieldPhone  FieldKind = "phone"
	FieldEmail  FieldKind = "email"
	FieldFile   FieldKind = "file"
)

// FileAccept restricts what may be attached to a file field.
type FileAccept struct {
	Mime []string `yaml:"mime,omitempty" json:"mime,omitempty"`
	Ext  []string `yaml:"ext,omitempty" json:"ext,omitempty"`
}

// FieldSpec describes one field of a ticket type. The zero value of every
// optional bound means "unconstrained".
type FieldSpec struct {
	Key         string     `yaml:"key" json:"key"`
	Label       string     `yaml:"label,omitempty" json:"label,omitempty"`
	Type        FieldKind  `yaml:"type" json:"type"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool       `yaml:"required,omitempty" json:"required,omitempty"`
	Enum        []string   `yaml:"enum,omitempty" json:"enum,omitempty"`
	Minimum     *float64   `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum     *float64   `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	MinLength   *int       `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength   *int       `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Pattern     string     `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	MinCount    *int       `yaml:"min_count,omitempty" json:"min_count,omitempty"`
	MaxCount    *int       `yaml:"max_count,omitempty" json:"max_count,omitempty"`
	Accept      FileAccept `yaml:"accept,omitempty" json:"accept,omitempty"`
	PerFileMax  int64      `yaml:"per_file_max_mb,omitempty" json:"per_file_max_mb,omitempty"`
	TotalMax    int64      `yaml:"max_total_mb,omitempty" json:"max_total_mb,omitempty"`
}

// TicketType is an admin-managed, addressable ticket category.
type TicketType struct {
	ID          string      `yaml:"id" json:"id"`
	DisplayName string      `yaml:"display_name" json:"display_name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Fields      []FieldSpec `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Ticket is a created support ticket.
type Ticket struct {
	ID        string         `json:"id"`
	ShortID   string         `json:"short_id"`
	TypeID    string         `json:"type"`
	SessionID string         `json:"session_id"`
	Fields    map[string]any `json:"fields"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
