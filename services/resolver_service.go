package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/bracketops/matchday/models"
	"github.com/bracketops/matchday/repositories"
)

// DeadlineResolver sweeps submitted matches whose reporting deadline has
// long passed and force-completes those that gathered at least one
// confirmation. Matches with no confirmation at all are left alone for an
// organizer to settle manually.
type DeadlineResolver struct {
	matchRepo repositories.MatchRepository
	lifecycle MatchLifecycleService
	grace     time.Duration
	logger    *slog.Logger
}

func NewDeadlineResolver(matchRepo repositories.MatchRepository, lifecycle MatchLifecycleService, grace time.Duration, logger *slog.Logger) *DeadlineResolver {
	return &DeadlineResolver{
		matchRepo: matchRepo,
		lifecycle: lifecycle,
		grace:     grace,
		logger:    logger,
	}
}

func (r *DeadlineResolver) ResolveExpired(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.grace)
	matches, err := r.matchRepo.ListSubmittedBefore(ctx, nil, cutoff)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	r.logger.InfoContext(ctx, "resolving expired submissions", slog.Int("count", len(matches)))
	for _, match := range matches {
		if match.Submission == nil || len(match.Submission.SeedsConfirmed) == 0 {
			continue
		}
		_, err := r.lifecycle.Complete(ctx, models.SystemPrincipal(), CompleteMatchInput{
			TournamentID: match.TournamentID,
			MatchID:      match.ID,
			Force:        true,
		})
		if err != nil {
			// Keep sweeping; one stuck match must not block the rest.
			r.logger.ErrorContext(ctx, "failed to auto-complete expired match",
				slog.Int("match_id", match.ID), slog.Any("error", err))
			continue
		}
		r.logger.InfoContext(ctx, "auto-completed expired match", slog.Int("match_id", match.ID))
	}
	return nil
}
