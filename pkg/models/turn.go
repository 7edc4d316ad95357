package models

// TurnResult is what one completed assistant turn returns to the transport
// layer: the persisted assistant message plus UI suggestion chips.
type TurnResult struct {
	MessageID   string   `json:"message_id"`
	SessionID   string   `json:"session_id"`
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions"`
}
