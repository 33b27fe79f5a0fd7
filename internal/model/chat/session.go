package chat

import "time"

// Session is an anonymous conversation held in process memory only.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}
