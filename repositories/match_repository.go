package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bracketops/matchday/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
)

// MatchRepository is the match store. All mutating methods are conditional
// updates filtered on (id, version); they report whether a row matched so the
// lifecycle layer can classify a lost race without a second read.
type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.MatchStatus) ([]*models.Match, error)
	ListSubmittedBefore(ctx context.Context, exec SQLExecutor, deadline time.Time) ([]*models.Match, error)

	ApplySubmission(ctx context.Context, exec SQLExecutor, id, version int, sub *models.MatchSubmission) (bool, error)
	UpdateConfirmations(ctx context.Context, exec SQLExecutor, id, version int, seedsConfirmed []models.Seed) (bool, error)
	MarkCompleted(ctx context.Context, exec SQLExecutor, id, version int, seedsConfirmed []models.Seed, confirmedAt time.Time) (bool, error)
	UpdateForfeits(ctx context.Context, exec SQLExecutor, id, version int, seedsForfeited []models.Seed) (bool, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func seedsToInt64(seeds []models.Seed) []int64 {
	out := make([]int64, len(seeds))
	for i, s := range seeds {
		out[i] = int64(s)
	}
	return out
}

func int64ToSeeds(values []int64) []models.Seed {
	out := make([]models.Seed, len(values))
	for i, v := range values {
		out[i] = models.Seed(v)
	}
	return out
}

const matchColumns = `
	id, tournament_id, team_seeds, time_start, time_deadline, status, version,
	seeds_forfeited, time_confirmed, created_at,
	submitter_seed, scores, seeds_confirmed, is_forfeit, winner_seed, tied_seeds, loser_seeds, time_submitted`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (tournament_id, team_seeds, time_start, time_deadline, status, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		match.TournamentID,
		pq.Array(seedsToInt64(match.TeamSeeds)),
		match.TimeStart,
		match.TimeDeadline,
		models.MatchStatusScheduled,
	).Scan(&match.ID, &match.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return ErrMatchTournamentInvalid
		}
		return err
	}
	match.Status = models.MatchStatusScheduled
	match.Version = 1
	return nil
}

func (r *postgresMatchRepository) scanMatch(rowScanner interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var (
		m              models.Match
		teamSeeds      pq.Int64Array
		seedsForfeited pq.Int64Array
		timeConfirmed  sql.NullTime
		submitterSeed  sql.NullInt64
		scoresRaw      []byte
		seedsConfirmed pq.Int64Array
		isForfeit      sql.NullBool
		winnerSeed     sql.NullInt64
		tiedSeeds      pq.Int64Array
		loserSeeds     pq.Int64Array
		timeSubmitted  sql.NullTime
	)

	err := rowScanner.Scan(
		&m.ID, &m.TournamentID, &teamSeeds, &m.TimeStart, &m.TimeDeadline, &m.Status, &m.Version,
		&seedsForfeited, &timeConfirmed, &m.CreatedAt,
		&submitterSeed, &scoresRaw, &seedsConfirmed, &isForfeit, &winnerSeed, &tiedSeeds, &loserSeeds, &timeSubmitted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	m.TeamSeeds = int64ToSeeds(teamSeeds)
	m.SeedsForfeited = int64ToSeeds(seedsForfeited)
	if timeConfirmed.Valid {
		t := timeConfirmed.Time
		m.TimeConfirmed = &t
	}

	if m.Status != models.MatchStatusScheduled {
		sub := &models.MatchSubmission{
			SubmitterSeed:  models.Seed(submitterSeed.Int64),
			SeedsConfirmed: int64ToSeeds(seedsConfirmed),
			IsForfeit:      isForfeit.Bool,
			TiedSeeds:      int64ToSeeds(tiedSeeds),
			LoserSeeds:     int64ToSeeds(loserSeeds),
		}
		if timeSubmitted.Valid {
			sub.TimeSubmitted = timeSubmitted.Time
		}
		if winnerSeed.Valid {
			w := models.Seed(winnerSeed.Int64)
			sub.WinnerSeed = &w
		}
		if len(scoresRaw) > 0 {
			if err := json.Unmarshal(scoresRaw, &sub.Scores); err != nil {
				return nil, fmt.Errorf("failed to decode score grid for match %d: %w", m.ID, err)
			}
		}
		m.Submission = sub
	}
	return &m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return r.scanMatch(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.MatchStatus) ([]*models.Match, error) {
	executor := r.getExecutor(exec)

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE tournament_id = $1`)
	args := []interface{}{tournamentID}
	if status != nil {
		queryBuilder.WriteString(" AND status = $" + strconv.Itoa(len(args)+1))
		args = append(args, *status)
	}
	queryBuilder.WriteString(" ORDER BY time_start ASC, id ASC")

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectMatches(rows)
}

func (r *postgresMatchRepository) ListSubmittedBefore(ctx context.Context, exec SQLExecutor, deadline time.Time) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + matchColumns + ` FROM matches WHERE status = $1 AND time_deadline < $2 ORDER BY time_deadline ASC`

	rows, err := executor.QueryContext(ctx, query, models.MatchStatusSubmitted, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectMatches(rows)
}

func (r *postgresMatchRepository) collectMatches(rows *sql.Rows) ([]*models.Match, error) {
	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, err := r.scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *postgresMatchRepository) ApplySubmission(ctx context.Context, exec SQLExecutor, id, version int, sub *models.MatchSubmission) (bool, error) {
	executor := r.getExecutor(exec)

	scoresRaw, err := json.Marshal(sub.Scores)
	if err != nil {
		return false, fmt.Errorf("failed to encode score grid: %w", err)
	}

	var winnerSeed interface{}
	if sub.WinnerSeed != nil {
		winnerSeed = int64(*sub.WinnerSeed)
	}

	query := `
		UPDATE matches SET
			status = $1, version = version + 1,
			submitter_seed = $2, scores = $3, seeds_confirmed = $4, is_forfeit = $5,
			winner_seed = $6, tied_seeds = $7, loser_seeds = $8, time_submitted = $9
		WHERE id = $10 AND version = $11 AND status <> $12`

	result, err := executor.ExecContext(ctx, query,
		models.MatchStatusSubmitted,
		int64(sub.SubmitterSeed),
		scoresRaw,
		pq.Array(seedsToInt64(sub.SeedsConfirmed)),
		sub.IsForfeit,
		winnerSeed,
		pq.Array(seedsToInt64(sub.TiedSeeds)),
		pq.Array(seedsToInt64(sub.LoserSeeds)),
		sub.TimeSubmitted,
		id, version, models.MatchStatusCompleted,
	)
	if err != nil {
		return false, err
	}
	return matchedRows(result)
}

func (r *postgresMatchRepository) UpdateConfirmations(ctx context.Context, exec SQLExecutor, id, version int, seedsConfirmed []models.Seed) (bool, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET seeds_confirmed = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND status = $4`

	result, err := executor.ExecContext(ctx, query,
		pq.Array(seedsToInt64(seedsConfirmed)),
		id, version, models.MatchStatusSubmitted,
	)
	if err != nil {
		return false, err
	}
	return matchedRows(result)
}

func (r *postgresMatchRepository) MarkCompleted(ctx context.Context, exec SQLExecutor, id, version int, seedsConfirmed []models.Seed, confirmedAt time.Time) (bool, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET
			status = $1, seeds_confirmed = $2, time_confirmed = $3, version = version + 1
		WHERE id = $4 AND version = $5 AND status = $6`

	result, err := executor.ExecContext(ctx, query,
		models.MatchStatusCompleted,
		pq.Array(seedsToInt64(seedsConfirmed)),
		confirmedAt,
		id, version, models.MatchStatusSubmitted,
	)
	if err != nil {
		return false, err
	}
	return matchedRows(result)
}

func (r *postgresMatchRepository) UpdateForfeits(ctx context.Context, exec SQLExecutor, id, version int, seedsForfeited []models.Seed) (bool, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET seeds_forfeited = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND status <> $4`

	result, err := executor.ExecContext(ctx, query,
		pq.Array(seedsToInt64(seedsForfeited)),
		id, version, models.MatchStatusCompleted,
	)
	if err != nil {
		return false, err
	}
	return matchedRows(result)
}
