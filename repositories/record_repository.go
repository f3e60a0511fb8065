package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bracketops/matchday/models"
)

// RecordRepository is the append-only audit log store. Records are inserted
// and listed, never updated or deleted; listing exists only for the archive
// export, lifecycle logic never reads records back.
type RecordRepository interface {
	Create(ctx context.Context, exec SQLExecutor, record *models.Record) error
	CreateBatch(ctx context.Context, exec SQLExecutor, records []*models.Record) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Record, error)
}

type postgresRecordRepository struct {
	db *sql.DB
}

func NewPostgresRecordRepository(db *sql.DB) RecordRepository {
	return &postgresRecordRepository{db: db}
}

func (r *postgresRecordRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const recordInsertQuery = `
	INSERT INTO records
		(id, type, tournament_id, match_id, team_id, performed_by_user_id, performed_by_player_id, timestamp, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (r *postgresRecordRepository) Create(ctx context.Context, exec SQLExecutor, record *models.Record) error {
	executor := r.getExecutor(exec)

	payloadRaw, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode record payload: %w", err)
	}

	_, err = executor.ExecContext(ctx, recordInsertQuery,
		record.ID, record.Type, record.TournamentID, record.MatchID, record.TeamID,
		record.PerformedByUserID, record.PerformedByPlayerID, record.Timestamp, payloadRaw,
	)
	return err
}

func (r *postgresRecordRepository) CreateBatch(ctx context.Context, exec SQLExecutor, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)

	for _, record := range records {
		payloadRaw, err := json.Marshal(record.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode record payload: %w", err)
		}
		if _, err := executor.ExecContext(ctx, recordInsertQuery,
			record.ID, record.Type, record.TournamentID, record.MatchID, record.TeamID,
			record.PerformedByUserID, record.PerformedByPlayerID, record.Timestamp, payloadRaw,
		); err != nil {
			return fmt.Errorf("failed to append record %s: %w", record.ID, err)
		}
	}
	return nil
}

func (r *postgresRecordRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Record, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, type, tournament_id, match_id, team_id, performed_by_user_id, performed_by_player_id, timestamp, payload
		FROM records
		WHERE tournament_id = $1
		ORDER BY timestamp ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*models.Record, 0)
	for rows.Next() {
		var (
			rec        models.Record
			payloadRaw []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Type, &rec.TournamentID, &rec.MatchID, &rec.TeamID,
			&rec.PerformedByUserID, &rec.PerformedByPlayerID, &rec.Timestamp, &payloadRaw,
		); err != nil {
			return nil, err
		}
		if len(payloadRaw) > 0 {
			if err := json.Unmarshal(payloadRaw, &rec.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload of record %s: %w", rec.ID, err)
			}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
