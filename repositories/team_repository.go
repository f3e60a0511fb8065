package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bracketops/matchday/models"
	"github.com/lib/pq"
)

var ErrTeamNotFound = errors.New("team not found")

// TeamRepository reads team identity and applies the standings counter
// increments. Identity fields are owned by the registration service, so
// there are no general update methods here: the increments are the only
// writes this side of the boundary performs, and they are plain commutative
// counter bumps safe under concurrent application.
type TeamRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error)
	GetByIDs(ctx context.Context, exec SQLExecutor, ids []int) ([]*models.Team, error)
	GetBySeeds(ctx context.Context, exec SQLExecutor, tournamentID int, seeds []models.Seed) ([]*models.Team, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Team, error)

	IncrementGamesPlayed(ctx context.Context, exec SQLExecutor, teamIDs []int) error
	IncrementWins(ctx context.Context, exec SQLExecutor, teamIDs []int) error
	IncrementLosses(ctx context.Context, exec SQLExecutor, teamIDs []int) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const teamColumns = `id, tournament_id, name, seed, games_played, wins, losses, ties, created_at`

func (r *postgresTeamRepository) scanTeam(rowScanner interface{ Scan(...interface{}) error }) (*models.Team, error) {
	var (
		t    models.Team
		seed sql.NullInt64
	)
	err := rowScanner.Scan(
		&t.ID, &t.TournamentID, &t.Name, &seed,
		&t.GamesPlayed, &t.Wins, &t.Losses, &t.Ties, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	if seed.Valid {
		s := models.Seed(seed.Int64)
		t.Seed = &s
	}
	return &t, nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	return r.scanTeam(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresTeamRepository) GetByIDs(ctx context.Context, exec SQLExecutor, ids []int) ([]*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = ANY($1) ORDER BY id ASC`

	rows, err := executor.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectTeams(rows)
}

func (r *postgresTeamRepository) GetBySeeds(ctx context.Context, exec SQLExecutor, tournamentID int, seeds []models.Seed) ([]*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + teamColumns + ` FROM teams WHERE tournament_id = $1 AND seed = ANY($2) ORDER BY seed ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID, pq.Array(seedsToInt64(seeds)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectTeams(rows)
}

func (r *postgresTeamRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Team, error) {
	executor := r.getExecutor(exec)
	// Standings order: wins, then fewest losses, then name for a stable sort.
	query := `SELECT ` + teamColumns + ` FROM teams WHERE tournament_id = $1
		ORDER BY wins DESC, losses ASC, name ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectTeams(rows)
}

func (r *postgresTeamRepository) collectTeams(rows *sql.Rows) ([]*models.Team, error) {
	teams := make([]*models.Team, 0)
	for rows.Next() {
		t, err := r.scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *postgresTeamRepository) increment(ctx context.Context, exec SQLExecutor, column string, teamIDs []int) error {
	if len(teamIDs) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)
	// column comes from the fixed set below, never from input.
	query := `UPDATE teams SET ` + column + ` = ` + column + ` + 1 WHERE id = ANY($1)`
	_, err := executor.ExecContext(ctx, query, pq.Array(teamIDs))
	return err
}

func (r *postgresTeamRepository) IncrementGamesPlayed(ctx context.Context, exec SQLExecutor, teamIDs []int) error {
	return r.increment(ctx, exec, "games_played", teamIDs)
}

func (r *postgresTeamRepository) IncrementWins(ctx context.Context, exec SQLExecutor, teamIDs []int) error {
	return r.increment(ctx, exec, "wins", teamIDs)
}

func (r *postgresTeamRepository) IncrementLosses(ctx context.Context, exec SQLExecutor, teamIDs []int) error {
	return r.increment(ctx, exec, "losses", teamIDs)
}
