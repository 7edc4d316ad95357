package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/pkg/models"
)

// ArtifactStat is the slice of the artifact repository the validator needs:
// metadata for a list of ids, unknown ids absent from the result.
type ArtifactStat interface {
	Stat(ctx context.Context, ids []string) ([]models.Artifact, error)
}

const (
	shortIDLength   = 6
	shortIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Service validates ticket payloads against their type spec and persists
// accepted tickets. Failures come back as coded tool errors the model can
// relay to the user.
type Service struct {
	store     Store
	artifacts ArtifactStat
	logger    *observability.Logger
}

// NewService wires the ticket service.
func NewService(store Store, artifacts ArtifactStat, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Service{store: store, artifacts: artifacts, logger: logger}
}

// Create validates fields against the type spec and persists the ticket.
// The result payload mirrors what the model needs to confirm the creation:
// ticket id, short id, type, echoed fields, status, timestamp.
func (s *Service) Create(ctx context.Context, sessionID, typeID string, fields map[string]any) capability.ToolResult {
	if fields == nil {
		fields = map[string]any{}
	}

	ticketType, err := s.store.GetType(ctx, typeID)
	if err != nil {
		return capability.FailWith(&capability.ToolError{
			Code:    "TYPE_NOT_FOUND",
			Message: fmt.Sprintf("Unknown type %q.", typeID),
		})
	}

	specByKey := make(map[string]*models.FieldSpec, len(ticketType.Fields))
	for i := range ticketType.Fields {
		if key := ticketType.Fields[i].Key; key != "" {
			specByKey[key] = &ticketType.Fields[i]
		}
	}

	var missing []string
	for key, f := range specByKey {
		if f.Required {
			if _, ok := fields[key]; !ok {
				missing = append(missing, key)
			}
		}
	}
	if len(missing) > 0 {
		return capability.FailWith(&capability.ToolError{Code: "MISSING_FIELDS", Fields: missing})
	}

	for key, val := range fields {
		f, ok := specByKey[key]
		if !ok {
			return capability.FailWith(&capability.ToolError{
				Code:    "UNKNOWN_FIELD",
				Details: map[string]any{"field": key},
			})
		}
		if terr := s.validateField(ctx, sessionID, f, val); terr != nil {
			return capability.FailWith(terr)
		}
	}

	now := time.Now().UTC()
	ticket := &models.Ticket{
		ID:        uuid.NewString(),
		ShortID:   newShortID(),
		TypeID:    typeID,
		SessionID: sessionID,
		Fields:    fields,
		Status:    "open",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		s.logger.Error(ctx, "ticket insert failed", "type", typeID, "error", err)
		return capability.Fail("CREATE_FAILED", "could not persist the ticket")
	}
	s.logger.Info(ctx, "ticket created", "type", typeID, "short_id", ticket.ShortID)

	return capability.OK(map[string]any{
		"ticket_id":  ticket.ID,
		"short_id":   ticket.ShortID,
		"type":       typeID,
		"fields":     fields,
		"status":     ticket.Status,
		"created_at": now.Format(time.RFC3339),
	})
}

func (s *Service) validateField(ctx context.Context, sessionID string, f *models.FieldSpec, val any) *capability.ToolError {
	switch f.Type {
	case models.FieldFile:
		if msg := s.validateFileField(ctx, sessionID, f, val); msg != "" {
			return &capability.ToolError{Code: "INVALID_FILE", Message: msg}
		}
		return nil

	case models.FieldEnum:
		str, ok := val.(string)
		if !ok || !contains(f.Enum, str) {
			return &capability.ToolError{
				Code:    "INVALID_ENUM",
				Details: map[string]any{"field": f.Key, "allowed": f.Enum},
			}
		}
		return nil

	case models.FieldNumber:
		num, ok := asNumber(val)
		if !ok {
			return &capability.ToolError{Code: "INVALID_NUMBER", Details: map[string]any{"field": f.Key}}
		}
		if f.Minimum != nil && num < *f.Minimum {
			return &capability.ToolError{
				Code:    "INVALID_RANGE",
				Details: map[string]any{"field": f.Key, "min": *f.Minimum},
			}
		}
		if f.Maximum != nil && num > *f.Maximum {
			return &capability.ToolError{
				Code:    "INVALID_RANGE",
				Details: map[string]any{"field": f.Key, "max": *f.Maximum},
			}
		}
		return nil

	default:
		// string, phone, email
		str, ok := val.(string)
		if !ok {
			return &capability.ToolError{Code: "INVALID_STRING", Details: map[string]any{"field": f.Key}}
		}
		runes := len([]rune(str))
		if f.MinLength != nil && runes < *f.MinLength {
			return &capability.ToolError{
				Code:    "STRING_TOO_SHORT",
				Details: map[string]any{"field": f.Key, "min_length": *f.MinLength},
			}
		}
		if f.MaxLength != nil && runes > *f.MaxLength {
			return &capability.ToolError{
				Code:    "STRING_TOO_LONG",
				Details: map[string]any{"field": f.Key, "max_length": *f.MaxLength},
			}
		}
		if f.Pattern != "" {
			re, err := regexp.Compile("^(?:" + f.Pattern + ")$")
			if err != nil || !re.MatchString(str) {
				return &capability.ToolError{Code: "PATTERN_MISMATCH", Details: map[string]any{"field": f.Key}}
			}
		}
		return nil
	}
}

// validateFileField checks attachment counts, existence, session ownership,
// accept rules, and size limits. Returns a human-readable reason or "".
func (s *Service) validateFileField(ctx context.Context, sessionID string, f *models.FieldSpec, val any) string {
	ids, ok := asStringSlice(val)
	if !ok {
		return fmt.Sprintf("Field %q must be an array of file IDs.", f.Key)
	}
	minCount, maxCount := fileCountBounds(f)
	if len(ids) < minCount || len(ids) > maxCount {
		return fmt.Sprintf("Field %q expects between %d and %d file(s).", f.Key, minCount, maxCount)
	}
	if len(ids) == 0 {
		return ""
	}
	if s.artifacts == nil {
		return "File uploads are not enabled."
	}

	files, err := s.artifacts.Stat(ctx, ids)
	if err != nil || len(files) != len(ids) {
		return fmt.Sprintf("Some file IDs in %q do not exist.", f.Key)
	}

	allowedMime := lowerAll(f.Accept.Mime)
	allowedExt := lowerAll(f.Accept.Ext)
	var totalBytes int64

	for i := range files {
		file := &files[i]
		if file.SessionID != sessionID {
			return fmt.Sprintf("File %q does not belong to this session.", file.ID)
		}
		totalBytes += file.Size

		mime := strings.ToLower(file.Mime)
		if len(allowedMime) > 0 && !mimeAllowed(mime, allowedMime) {
			return fmt.Sprintf("File %q has disallowed MIME %q.", file.ID, mime)
		}
		if ext := file.Ext(); len(allowedExt) > 0 && ext != "" && !contains(allowedExt, ext) {
			return fmt.Sprintf("File %q has disallowed extension %q.", file.ID, "."+ext)
		}
		if f.PerFileMax > 0 && file.Size > f.PerFileMax<<20 {
			return fmt.Sprintf("File %q exceeds per-file size limit (%dMB).", file.ID, f.PerFileMax)
		}
	}
	if f.TotalMax > 0 && totalBytes > f.TotalMax<<20 {
		return fmt.Sprintf("Total size of %q exceeds %dMB.", f.Key, f.TotalMax)
	}
	return ""
}

// mimeAllowed accepts exact matches and image/* style wildcards.
func mimeAllowed(mime string, allowed []string) bool {
	for _, a := range allowed {
		if mime == a {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mime, prefix+"/") {
			return true
		}
	}
	return false
}

func newShortID() string {
	b := make([]byte, shortIDLength)
	for i := range b {
		b[i] = shortIDAlphabet[rand.IntN(len(shortIDAlphabet))]
	}
	return string(b)
}

func asNumber(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asStringSlice(val any) ([]string, bool) {
	switch v := val.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func lowerAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, strings.TrimPrefix(s, "."))
		}
	}
	return out
}
