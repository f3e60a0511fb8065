package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bracketops/matchday/models"
	"github.com/bracketops/matchday/repositories"
	"golang.org/x/sync/errgroup"
)

type SubmitMatchInput struct {
	TournamentID int              `json:"-"`
	MatchID      int              `json:"-"`
	TeamID       int              `json:"team_id"`
	Scores       [][]models.Score `json:"scores"`
	IsForfeit    bool             `json:"is_forfeit"`
	Force        bool             `json:"force"`
}

type ConfirmMatchInput struct {
	TournamentID int  `json:"-"`
	MatchID      int  `json:"-"`
	TeamID       int  `json:"team_id"`
	Force        bool `json:"force"`
}

type CompleteMatchInput struct {
	TournamentID int  `json:"-"`
	MatchID      int  `json:"-"`
	TeamID       int  `json:"team_id"` // final confirming team, 0 for a direct administrative completion
	Force        bool `json:"force"`
}

type ForfeitMatchInput struct {
	TournamentID int  `json:"-"`
	MatchID      int  `json:"-"`
	TeamID       int  `json:"team_id"`
	GiveWin      bool `json:"give_win"`
}

// MatchLifecycleService drives the match state machine
// scheduled -> submitted -> completed, with the forfeit side path. It is the
// only writer of match state; concurrency control is the per-match version
// token every conditional update filters on.
type MatchLifecycleService interface {
	Submit(ctx context.Context, actor models.Principal, input SubmitMatchInput) (*models.Match, error)
	Confirm(ctx context.Context, actor models.Principal, input ConfirmMatchInput) (*models.Match, error)
	Complete(ctx context.Context, actor models.Principal, input CompleteMatchInput) (*models.Match, error)
	Forfeit(ctx context.Context, actor models.Principal, input ForfeitMatchInput) (*models.Match, error)

	GetMatch(ctx context.Context, tournamentID, matchID int) (*models.Match, error)
	ListMatches(ctx context.Context, tournamentID int, status *models.MatchStatus) ([]*models.Match, error)

	// Run consumes the forfeit auto-submission queue until ctx is cancelled.
	Run(ctx context.Context)
}

type autoSubmitTask struct {
	TournamentID int
	MatchID      int
	TeamID       int
}

type matchLifecycleService struct {
	matchRepo      repositories.MatchRepository
	teamRepo       repositories.TeamRepository
	tournamentRepo repositories.TournamentRepository
	records        RecordService
	standings      StandingsService
	logger         *slog.Logger
	autoSubmit     chan autoSubmitTask
}

func NewMatchLifecycleService(
	matchRepo repositories.MatchRepository,
	teamRepo repositories.TeamRepository,
	tournamentRepo repositories.TournamentRepository,
	records RecordService,
	standings StandingsService,
	logger *slog.Logger,
) MatchLifecycleService {
	return &matchLifecycleService{
		matchRepo:      matchRepo,
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
		records:        records,
		standings:      standings,
		logger:         logger,
		autoSubmit:     make(chan autoSubmitTask, 64),
	}
}

func (s *matchLifecycleService) GetMatch(ctx context.Context, tournamentID, matchID int) (*models.Match, error) {
	_, match, err := s.loadMatch(ctx, tournamentID, matchID)
	return match, err
}

func (s *matchLifecycleService) ListMatches(ctx context.Context, tournamentID int, status *models.MatchStatus) ([]*models.Match, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, s.mapTournamentErr(err)
	}
	return s.matchRepo.ListByTournament(ctx, nil, tournamentID, status)
}

// Submit reports a match result on behalf of a team. A submission on an
// already-submitted match replaces it and restarts confirmation from scratch.
// TODO: decide whether re-submission should require force once product
// confirms the intended reporting flow.
func (s *matchLifecycleService) Submit(ctx context.Context, actor models.Principal, input SubmitMatchInput) (*models.Match, error) {
	if input.Force && !actor.Has(models.RoleAdmin) {
		return nil, ErrForceRequiresAdmin
	}

	tournament, match, err := s.loadMatch(ctx, input.TournamentID, input.MatchID)
	if err != nil {
		return nil, err
	}
	if match.IsCompleted() {
		return nil, ErrMatchAlreadyCompleted
	}

	team, seed, err := s.loadParticipant(ctx, match, input.TeamID, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !input.Force {
		if now.Before(match.TimeStart) || now.After(match.TimeDeadline) {
			return nil, fmt.Errorf("%w: window is %s to %s",
				ErrMatchWindowClosed,
				match.TimeStart.Format(time.RFC3339),
				match.TimeDeadline.Format(time.RFC3339))
		}
	}

	// The grid must be rectangular even under force, otherwise the scoring
	// pass has nothing meaningful to work with.
	if err := validateScoreShape(tournament, match, input.Scores); err != nil {
		return nil, err
	}
	if !input.Force {
		if err := validateScoreRange(tournament, input.Scores); err != nil {
			return nil, err
		}
	}

	winner, tied, lost := ComputeOutcome(match.TeamSeeds, input.Scores)
	if len(match.SeedsForfeited) > 0 {
		winner, tied, lost = applyForfeits(winner, tied, lost, match.SeedsForfeited)
	}

	if err := s.crossCheckOutcome(ctx, tournament, winner, tied, lost); err != nil {
		s.logger.ErrorContext(ctx, "outcome cross-check failed",
			slog.Int("match_id", match.ID), slog.Any("error", err))
		return nil, err
	}

	sub := &models.MatchSubmission{
		SubmitterSeed:  seed,
		Scores:         input.Scores,
		SeedsConfirmed: []models.Seed{},
		IsForfeit:      input.IsForfeit,
		WinnerSeed:     winner,
		TiedSeeds:      tied,
		LoserSeeds:     lost,
		TimeSubmitted:  now,
	}

	matched, err := s.matchRepo.ApplySubmission(ctx, nil, match.ID, match.Version, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to persist submission for match %d: %w", match.ID, err)
	}
	if !matched {
		return nil, ErrMatchConflict
	}

	match.Status = models.MatchStatusSubmitted
	match.Version++
	match.Submission = sub

	record := models.NewRecord(models.RecordMatchSubmit, tournament.ID, actor).
		ForMatch(match.ID).
		ForTeam(team.ID).
		With("submitter_seed", seed).
		With("scores", input.Scores).
		With("is_forfeit", input.IsForfeit).
		With("tied_seeds", tied).
		With("loser_seeds", lost)
	if winner != nil {
		record.With("winner_seed", *winner)
	}
	if err := s.records.StoreAndBroadcast(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append submit record for match %d: %w", match.ID, err)
	}

	return match, nil
}

func (s *matchLifecycleService) Confirm(ctx context.Context, actor models.Principal, input ConfirmMatchInput) (*models.Match, error) {
	if input.Force && !actor.Has(models.RoleAdmin) {
		return nil, ErrForceRequiresAdmin
	}

	tournament, match, err := s.loadMatch(ctx, input.TournamentID, input.MatchID)
	if err != nil {
		return nil, err
	}
	if match.IsCompleted() {
		return nil, ErrMatchAlreadyCompleted
	}
	if !match.IsSubmitted() {
		return nil, ErrMatchNotSubmitted
	}

	team, seed, err := s.loadParticipant(ctx, match, input.TeamID, !input.Force)
	if err != nil {
		return nil, err
	}
	if seed == match.Submission.SubmitterSeed {
		return nil, ErrSubmitterCannotConfirm
	}
	if match.HasConfirmed(seed) {
		return nil, ErrAlreadyConfirmed
	}

	confirmed := append(append([]models.Seed{}, match.Submission.SeedsConfirmed...), seed)

	if len(confirmed) >= match.ConfirmationQuorum() {
		return s.complete(ctx, actor, tournament, match, team, confirmed)
	}

	matched, err := s.matchRepo.UpdateConfirmations(ctx, nil, match.ID, match.Version, confirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to persist confirmation for match %d: %w", match.ID, err)
	}
	if !matched {
		return nil, ErrMatchConflict
	}

	match.Submission.SeedsConfirmed = confirmed
	match.Version++

	record := models.NewRecord(models.RecordMatchConfirm, tournament.ID, actor).
		ForMatch(match.ID).
		ForTeam(team.ID).
		With("seed", seed).
		With("seeds_confirmed", confirmed)
	if err := s.records.StoreAndBroadcast(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append confirm record for match %d: %w", match.ID, err)
	}

	return match, nil
}

func (s *matchLifecycleService) Complete(ctx context.Context, actor models.Principal, input CompleteMatchInput) (*models.Match, error) {
	if input.Force && !actor.Has(models.RoleAdmin) {
		return nil, ErrForceRequiresAdmin
	}

	tournament, match, err := s.loadMatch(ctx, input.TournamentID, input.MatchID)
	if err != nil {
		return nil, err
	}
	if match.IsCompleted() {
		return nil, ErrMatchAlreadyCompleted
	}
	if !match.IsSubmitted() {
		return nil, ErrMatchNotSubmitted
	}

	confirmed := append([]models.Seed{}, match.Submission.SeedsConfirmed...)

	var finalConfirmer *models.Team
	if input.TeamID != 0 {
		team, seed, err := s.loadParticipant(ctx, match, input.TeamID, !input.Force)
		if err != nil {
			return nil, err
		}
		if seed == match.Submission.SubmitterSeed {
			return nil, ErrSubmitterCannotConfirm
		}
		if !match.HasConfirmed(seed) {
			confirmed = append(confirmed, seed)
		}
		finalConfirmer = team
	}

	if !input.Force && len(confirmed) < match.ConfirmationQuorum() {
		return nil, fmt.Errorf("%w: have %d of %d required confirmations",
			ErrQuorumNotReached, len(confirmed), match.ConfirmationQuorum())
	}

	return s.complete(ctx, actor, tournament, match, finalConfirmer, confirmed)
}

// complete finalizes a submitted match. The match persist, the audit record
// appends and the standings update are issued concurrently and awaited
// together. A standings failure is logged but does not undo the completion:
// standings are a derived cache, recomputable from the record log.
func (s *matchLifecycleService) complete(
	ctx context.Context,
	actor models.Principal,
	tournament *models.Tournament,
	match *models.Match,
	finalConfirmer *models.Team,
	confirmed []models.Seed,
) (*models.Match, error) {
	now := time.Now().UTC()

	teams, err := s.teamRepo.GetBySeeds(ctx, nil, tournament.ID, match.TeamSeeds)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roster for match %d: %w", match.ID, err)
	}
	if len(teams) != len(match.TeamSeeds) {
		s.logger.ErrorContext(ctx, "roster does not cover match seeds",
			slog.Int("match_id", match.ID),
			slog.Int("seeds", len(match.TeamSeeds)),
			slog.Int("teams", len(teams)))
		return nil, ErrOutcomeInconsistent
	}

	completed := *match
	completed.Status = models.MatchStatusCompleted
	completed.Version = match.Version + 1
	completed.TimeConfirmed = &now
	subCopy := *match.Submission
	subCopy.SeedsConfirmed = confirmed
	completed.Submission = &subCopy

	var batch []*models.Record
	if finalConfirmer != nil && finalConfirmer.Seed != nil {
		batch = append(batch, models.NewRecord(models.RecordMatchConfirm, tournament.ID, actor).
			ForMatch(match.ID).
			ForTeam(finalConfirmer.ID).
			With("seed", *finalConfirmer.Seed).
			With("seeds_confirmed", confirmed))
	}
	completeRecord := models.NewRecord(models.RecordMatchComplete, tournament.ID, actor).
		ForMatch(match.ID).
		With("seeds_confirmed", confirmed).
		With("tied_seeds", subCopy.TiedSeeds).
		With("loser_seeds", subCopy.LoserSeeds)
	if subCopy.WinnerSeed != nil {
		completeRecord.With("winner_seed", *subCopy.WinnerSeed)
	}
	batch = append(batch, completeRecord)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matched, err := s.matchRepo.MarkCompleted(gctx, nil, match.ID, match.Version, confirmed, now)
		if err != nil {
			return fmt.Errorf("failed to persist completion for match %d: %w", match.ID, err)
		}
		if !matched {
			// Completion is the point of no return; a lost write here is
			// not a retryable race but a state the version guard should
			// have made impossible.
			s.logger.ErrorContext(gctx, "completion update matched no rows",
				slog.Int("match_id", match.ID), slog.Int("version", match.Version))
			return ErrMatchStateCorrupted
		}
		return nil
	})
	g.Go(func() error {
		if err := s.records.StoreAndBroadcastBatch(gctx, batch); err != nil {
			return fmt.Errorf("failed to append completion records for match %d: %w", match.ID, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.standings.UpdateAfterMatch(gctx, &completed, teams); err != nil {
			s.logger.ErrorContext(gctx, "standings update failed after completion",
				slog.Int("match_id", match.ID), slog.Any("error", err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &completed, nil
}

func (s *matchLifecycleService) Forfeit(ctx context.Context, actor models.Principal, input ForfeitMatchInput) (*models.Match, error) {
	tournament, match, err := s.loadMatch(ctx, input.TournamentID, input.MatchID)
	if err != nil {
		return nil, err
	}
	if match.IsCompleted() {
		return nil, ErrMatchAlreadyCompleted
	}
	if match.IsSubmitted() {
		return nil, ErrMatchAlreadySubmitted
	}

	team, seed, err := s.loadParticipant(ctx, match, input.TeamID, true)
	if err != nil {
		return nil, err
	}
	if match.HasForfeited(seed) {
		return nil, ErrAlreadyForfeited
	}

	forfeited := append(append([]models.Seed{}, match.SeedsForfeited...), seed)

	matched, err := s.matchRepo.UpdateForfeits(ctx, nil, match.ID, match.Version, forfeited)
	if err != nil {
		return nil, fmt.Errorf("failed to persist forfeit for match %d: %w", match.ID, err)
	}
	if !matched {
		s.logger.ErrorContext(ctx, "forfeit update matched no rows",
			slog.Int("match_id", match.ID), slog.Int("version", match.Version))
		return nil, ErrMatchStateCorrupted
	}

	match.SeedsForfeited = forfeited
	match.Version++

	record := models.NewRecord(models.RecordMatchForfeit, tournament.ID, actor).
		ForMatch(match.ID).
		ForTeam(team.ID).
		With("seed", seed).
		With("give_win", input.GiveWin)
	if err := s.records.StoreAndBroadcast(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append forfeit record for match %d: %w", match.ID, err)
	}

	if input.GiveWin && len(forfeited) == len(match.TeamSeeds)-1 {
		if err := s.enqueueAutoSubmit(ctx, tournament, match); err != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue forfeit auto-submission",
				slog.Int("match_id", match.ID), slog.Any("error", err))
		}
	}

	return match, nil
}

// enqueueAutoSubmit hands the remaining team's walkover submission to the
// worker queue. Queued rather than fired detached so failures surface in the
// worker's log and the queue drains in order.
func (s *matchLifecycleService) enqueueAutoSubmit(ctx context.Context, tournament *models.Tournament, match *models.Match) error {
	var remaining *models.Seed
	for _, seed := range match.TeamSeeds {
		if !match.HasForfeited(seed) {
			seed := seed
			remaining = &seed
			break
		}
	}
	if remaining == nil {
		return fmt.Errorf("match %d has no non-forfeiting team left", match.ID)
	}

	teams, err := s.teamRepo.GetBySeeds(ctx, nil, tournament.ID, []models.Seed{*remaining})
	if err != nil {
		return fmt.Errorf("failed to resolve remaining team for match %d: %w", match.ID, err)
	}
	if len(teams) != 1 {
		return fmt.Errorf("expected one team for seed %d in match %d, got %d", *remaining, match.ID, len(teams))
	}

	task := autoSubmitTask{TournamentID: tournament.ID, MatchID: match.ID, TeamID: teams[0].ID}
	select {
	case s.autoSubmit <- task:
		return nil
	default:
		return fmt.Errorf("auto-submission queue is full, dropping task for match %d", match.ID)
	}
}

func (s *matchLifecycleService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.autoSubmit:
			s.runAutoSubmit(ctx, task)
		}
	}
}

func (s *matchLifecycleService) runAutoSubmit(ctx context.Context, task autoSubmitTask) {
	tournament, match, err := s.loadMatch(ctx, task.TournamentID, task.MatchID)
	if err != nil {
		s.logger.ErrorContext(ctx, "auto-submission lookup failed",
			slog.Int("match_id", task.MatchID), slog.Any("error", err))
		return
	}

	// Walkover: an all-zero grid submitted for the remaining team. The
	// forfeit adjustment in Submit turns the resulting all-way tie into a
	// win for the only team that did not forfeit.
	_, err = s.Submit(ctx, models.SystemPrincipal(), SubmitMatchInput{
		TournamentID: tournament.ID,
		MatchID:      match.ID,
		TeamID:       task.TeamID,
		Scores:       zeroScoreGrid(tournament.MatchRounds, len(match.TeamSeeds)),
		IsForfeit:    true,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "forfeit auto-submission failed",
			slog.Int("match_id", match.ID), slog.Int("team_id", task.TeamID), slog.Any("error", err))
		return
	}
	s.logger.InfoContext(ctx, "forfeit auto-submission applied",
		slog.Int("match_id", match.ID), slog.Int("team_id", task.TeamID))
}

func (s *matchLifecycleService) loadMatch(ctx context.Context, tournamentID, matchID int) (*models.Tournament, *models.Match, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, nil, s.mapTournamentErr(err)
	}

	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, nil, ErrMatchNotFound
		}
		return nil, nil, fmt.Errorf("failed to load match %d: %w", matchID, err)
	}
	if match.TournamentID != tournament.ID {
		return nil, nil, ErrMatchNotFound
	}
	return tournament, match, nil
}

func (s *matchLifecycleService) mapTournamentErr(err error) error {
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return ErrTournamentNotFound
	}
	return fmt.Errorf("failed to load tournament: %w", err)
}

func (s *matchLifecycleService) loadParticipant(ctx context.Context, match *models.Match, teamID int, requireParticipant bool) (*models.Team, models.Seed, error) {
	team, err := s.teamRepo.GetByID(ctx, nil, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, 0, ErrTeamNotFound
		}
		return nil, 0, fmt.Errorf("failed to load team %d: %w", teamID, err)
	}
	if team.Seed == nil {
		return nil, 0, ErrTeamNotSeeded
	}
	if requireParticipant {
		if team.TournamentID != match.TournamentID || !match.HasSeed(*team.Seed) {
			return nil, 0, ErrTeamNotInMatch
		}
	}
	return team, *team.Seed, nil
}

func validateScoreShape(tournament *models.Tournament, match *models.Match, scores [][]models.Score) error {
	if len(scores) != tournament.MatchRounds {
		return fmt.Errorf("%w: got %d rounds, tournament plays %d",
			ErrScoreShapeInvalid, len(scores), tournament.MatchRounds)
	}
	for i, round := range scores {
		if len(round) != len(match.TeamSeeds) {
			return fmt.Errorf("%w: round %d has %d entries for %d teams",
				ErrScoreShapeInvalid, i+1, len(round), len(match.TeamSeeds))
		}
	}
	return nil
}

func validateScoreRange(tournament *models.Tournament, scores [][]models.Score) error {
	for i, round := range scores {
		for j, score := range round {
			if score < 0 || int(score) > tournament.MatchMaxScore {
				return fmt.Errorf("%w: round %d entry %d is %d, allowed 0 to %d",
					ErrScoreOutOfRange, i+1, j+1, score, tournament.MatchMaxScore)
			}
		}
	}
	return nil
}

// applyForfeits removes forfeiting seeds from the winning side of an
// outcome. A forfeiting team can never win or tie; if exactly one contender
// survives the filter it takes the match outright.
func applyForfeits(winner *models.Seed, tied, lost []models.Seed, forfeited []models.Seed) (*models.Seed, []models.Seed, []models.Seed) {
	isForfeited := make(map[models.Seed]bool, len(forfeited))
	for _, seed := range forfeited {
		isForfeited[seed] = true
	}

	var contenders []models.Seed
	if winner != nil {
		contenders = []models.Seed{*winner}
	} else {
		contenders = tied
	}

	var surviving []models.Seed
	for _, seed := range contenders {
		if isForfeited[seed] {
			lost = append(lost, seed)
		} else {
			surviving = append(surviving, seed)
		}
	}
	sortSeeds(lost)

	switch len(surviving) {
	case 0:
		return nil, nil, lost
	case 1:
		return &surviving[0], nil, lost
	default:
		return nil, surviving, lost
	}
}

// crossCheckOutcome asserts that every seed the scoring pass produced
// resolves to a registered team. A mismatch is not a user error: it means
// seeding data and match data disagree.
func (s *matchLifecycleService) crossCheckOutcome(ctx context.Context, tournament *models.Tournament, winner *models.Seed, tied, lost []models.Seed) error {
	var outcomeSeeds []models.Seed
	if winner != nil {
		outcomeSeeds = append(outcomeSeeds, *winner)
	}
	outcomeSeeds = append(outcomeSeeds, tied...)
	outcomeSeeds = append(outcomeSeeds, lost...)

	teams, err := s.teamRepo.GetBySeeds(ctx, nil, tournament.ID, outcomeSeeds)
	if err != nil {
		return fmt.Errorf("failed to resolve outcome teams: %w", err)
	}
	if len(teams) != len(outcomeSeeds) {
		return fmt.Errorf("%w: %d outcome seeds resolved to %d teams",
			ErrOutcomeInconsistent, len(outcomeSeeds), len(teams))
	}
	return nil
}
