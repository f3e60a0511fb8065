package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bracketops/matchday/models"
)

var ErrTournamentNotFound = errors.New("tournament not found")

// TournamentRepository is read-only on this side of the boundary; tournament
// CRUD lives with the upstream service. The lifecycle treats the result as
// authoritative config for score-shape validation.
type TournamentRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	GetBySlug(ctx context.Context, exec SQLExecutor, slug string) (*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) scanTournament(rowScanner interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	var t models.Tournament
	err := rowScanner.Scan(&t.ID, &t.Slug, &t.Name, &t.MatchRounds, &t.MatchMaxScore, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT id, slug, name, match_rounds, match_max_score, created_at FROM tournaments WHERE id = $1`
	return r.scanTournament(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) GetBySlug(ctx context.Context, exec SQLExecutor, slug string) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT id, slug, name, match_rounds, match_max_score, created_at FROM tournaments WHERE slug = $1`
	return r.scanTournament(executor.QueryRowContext(ctx, query, slug))
}
