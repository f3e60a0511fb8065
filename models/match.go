package models

import "time"

// Seed is a tournament-scoped ordinal identifying a team's slot in the bracket.
type Seed int

// Score is a single raw round score as submitted by a team.
type Score int

type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusSubmitted MatchStatus = "submitted"
	MatchStatusCompleted MatchStatus = "completed"
)

// MatchSubmission carries everything a score submission adds to a scheduled
// match: the raw score grid, the computed outcome and the confirmations
// gathered so far. A match without a submission is still scheduled.
type MatchSubmission struct {
	SubmitterSeed  Seed      `json:"submitter_seed"`
	Scores         [][]Score `json:"scores"` // [round][team], columns aligned with Match.TeamSeeds
	SeedsConfirmed []Seed    `json:"seeds_confirmed"`
	IsForfeit      bool      `json:"is_forfeit"`
	WinnerSeed     *Seed     `json:"winner_seed,omitempty"`
	TiedSeeds      []Seed    `json:"tied_seeds,omitempty"`
	LoserSeeds     []Seed    `json:"loser_seeds,omitempty"`
	TimeSubmitted  time.Time `json:"time_submitted"`
}

type Match struct {
	ID             int         `json:"id" db:"id"`
	TournamentID   int         `json:"tournament_id" db:"tournament_id"`
	TeamSeeds      []Seed      `json:"team_seeds" db:"team_seeds"`
	TimeStart      time.Time   `json:"time_start" db:"time_start"`
	TimeDeadline   time.Time   `json:"time_deadline" db:"time_deadline"`
	Status         MatchStatus `json:"status" db:"status"`
	Version        int         `json:"version" db:"version"`
	SeedsForfeited []Seed      `json:"seeds_forfeited,omitempty" db:"seeds_forfeited"`
	TimeConfirmed  *time.Time  `json:"time_confirmed,omitempty" db:"time_confirmed"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`

	// Submission is non-nil exactly when the match has left the scheduled
	// state. Use IsSubmitted/IsCompleted instead of poking at fields.
	Submission *MatchSubmission `json:"submission,omitempty" db:"-"`
}

func (m *Match) IsSubmitted() bool {
	return m.Status == MatchStatusSubmitted && m.Submission != nil
}

func (m *Match) IsCompleted() bool {
	return m.Status == MatchStatusCompleted
}

func (m *Match) HasSeed(seed Seed) bool {
	for _, s := range m.TeamSeeds {
		if s == seed {
			return true
		}
	}
	return false
}

func (m *Match) HasConfirmed(seed Seed) bool {
	if m.Submission == nil {
		return false
	}
	for _, s := range m.Submission.SeedsConfirmed {
		if s == seed {
			return true
		}
	}
	return false
}

func (m *Match) HasForfeited(seed Seed) bool {
	for _, s := range m.SeedsForfeited {
		if s == seed {
			return true
		}
	}
	return false
}

// ConfirmationQuorum is the number of non-submitter confirmations required
// before a submitted match may complete: a majority of all participating
// teams, rounded up.
func (m *Match) ConfirmationQuorum() int {
	return (len(m.TeamSeeds) + 1) / 2
}
