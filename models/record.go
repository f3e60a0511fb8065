package models

import (
	"time"

	"github.com/google/uuid"
)

type RecordType string

const (
	RecordMatchSubmit   RecordType = "matchSubmit"
	RecordMatchConfirm  RecordType = "matchConfirm"
	RecordMatchComplete RecordType = "matchComplete"
	RecordMatchForfeit  RecordType = "matchForfeit"
)

// Record is one immutable fact in the audit trail. Records are created once
// and never mutated or deleted; nothing in the lifecycle reads them back for
// its own logic.
type Record struct {
	ID                  uuid.UUID      `json:"id" db:"id"`
	Type                RecordType     `json:"type" db:"type"`
	TournamentID        int            `json:"tournament_id" db:"tournament_id"`
	MatchID             *int           `json:"match_id,omitempty" db:"match_id"`
	TeamID              *int           `json:"team_id,omitempty" db:"team_id"`
	PerformedByUserID   int            `json:"performed_by_user_id" db:"performed_by_user_id"`
	PerformedByPlayerID *int           `json:"performed_by_player_id,omitempty" db:"performed_by_player_id"`
	Timestamp           time.Time      `json:"timestamp" db:"timestamp"`
	Payload             map[string]any `json:"payload,omitempty" db:"payload"`
}

func NewRecord(recordType RecordType, tournamentID int, actor Principal) *Record {
	return &Record{
		ID:                  uuid.New(),
		Type:                recordType,
		TournamentID:        tournamentID,
		PerformedByUserID:   actor.UserID,
		PerformedByPlayerID: actor.PlayerID,
		Timestamp:           time.Now().UTC(),
		Payload:             map[string]any{},
	}
}

func (r *Record) ForMatch(matchID int) *Record {
	r.MatchID = &matchID
	return r
}

func (r *Record) ForTeam(teamID int) *Record {
	r.TeamID = &teamID
	return r
}

func (r *Record) With(key string, value any) *Record {
	r.Payload[key] = value
	return r
}
