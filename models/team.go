package models

import "time"

// Team is referenced by seed within a tournament. Identity fields are owned
// by the registration service; the aggregate counters (gp/wins/losses/ties)
// are owned by the standings aggregator and must never be written directly.
type Team struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Name         string    `json:"name" db:"name"`
	Seed         *Seed     `json:"seed,omitempty" db:"seed"` // nil until seeding
	GamesPlayed  int       `json:"gp" db:"games_played"`
	Wins         int       `json:"wins" db:"wins"`
	Losses       int       `json:"losses" db:"losses"`
	Ties         int       `json:"ties" db:"ties"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
