package dto

// SessionResponse describes a started or resumed table session.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	TableID   string `json:"table_id"`
	Status    string `json:"status"`
}
