package models

import "time"

// Tournament carries the per-tournament match configuration the lifecycle
// relies on. Registration, seeding and schedule generation live in the
// upstream service; this side only reads.
type Tournament struct {
	ID            int       `json:"id" db:"id"`
	Slug          string    `json:"slug" db:"slug"`
	Name          string    `json:"name" db:"name"`
	MatchRounds   int       `json:"match_rounds" db:"match_rounds"`
	MatchMaxScore int       `json:"match_max_score" db:"match_max_score"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
