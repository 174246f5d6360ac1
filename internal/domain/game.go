package domain

import "time"

// GameStatus represents the lifecycle state of a simulation session.
type GameStatus string

// Game statuses. Scheduled engine passes only run against active games.
const (
	GameStatusDraft    GameStatus = "draft"
	GameStatusActive   GameStatus = "active"
	GameStatusPaused   GameStatus = "paused"
	GameStatusFinished GameStatus = "finished"
)

// Game is one simulation session. The engine does not manage the game
// lifecycle; it only needs to know which games its passes should cover.
type Game struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    GameStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
