package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bracketops/matchday/models"
	"github.com/bracketops/matchday/repositories"
	"golang.org/x/sync/errgroup"
)

// StandingsService reacts to completed matches by bumping the derived
// win/loss/games-played counters. The counters are a recomputable cache of
// the record log, so the increments run as independent commutative updates
// with no cross-field transaction.
type StandingsService interface {
	UpdateAfterMatch(ctx context.Context, match *models.Match, teams []*models.Team) error
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error)
}

type standingsService struct {
	teamRepo       repositories.TeamRepository
	tournamentRepo repositories.TournamentRepository
	logger         *slog.Logger
}

func NewStandingsService(teamRepo repositories.TeamRepository, tournamentRepo repositories.TournamentRepository, logger *slog.Logger) StandingsService {
	return &standingsService{teamRepo: teamRepo, tournamentRepo: tournamentRepo, logger: logger}
}

// UpdateAfterMatch applies, per completed match: gp+1 for every participant,
// wins+1 for the winner and for every tied team, losses+1 for every loser.
// Tied teams currently count as winners in the standings; the ties column
// stays untouched until product decides otherwise.
func (s *standingsService) UpdateAfterMatch(ctx context.Context, match *models.Match, teams []*models.Team) error {
	if !match.IsCompleted() || match.Submission == nil {
		return fmt.Errorf("standings update requires a completed match, got %q for match %d", match.Status, match.ID)
	}

	teamsBySeed := make(map[models.Seed]*models.Team, len(teams))
	for _, team := range teams {
		if team.Seed != nil {
			teamsBySeed[*team.Seed] = team
		}
	}

	resolve := func(seeds []models.Seed) ([]int, error) {
		ids := make([]int, 0, len(seeds))
		for _, seed := range seeds {
			team, ok := teamsBySeed[seed]
			if !ok {
				return nil, fmt.Errorf("no team for seed %d in match %d", seed, match.ID)
			}
			ids = append(ids, team.ID)
		}
		return ids, nil
	}

	allIDs, err := resolve(match.TeamSeeds)
	if err != nil {
		return err
	}

	winningSeeds := append([]models.Seed{}, match.Submission.TiedSeeds...)
	if match.Submission.WinnerSeed != nil {
		winningSeeds = append(winningSeeds, *match.Submission.WinnerSeed)
	}
	winnerIDs, err := resolve(winningSeeds)
	if err != nil {
		return err
	}
	loserIDs, err := resolve(match.Submission.LoserSeeds)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.teamRepo.IncrementGamesPlayed(gctx, nil, allIDs) })
	g.Go(func() error { return s.teamRepo.IncrementWins(gctx, nil, winnerIDs) })
	g.Go(func() error { return s.teamRepo.IncrementLosses(gctx, nil, loserIDs) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("standings update for match %d incomplete: %w", match.ID, err)
	}

	s.logger.InfoContext(ctx, "standings updated",
		slog.Int("match_id", match.ID),
		slog.Int("teams", len(allIDs)),
		slog.Int("winners", len(winnerIDs)),
		slog.Int("losers", len(loserIDs)))
	return nil
}

func (s *standingsService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return s.teamRepo.ListByTournament(ctx, nil, tournamentID)
}
