package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bracketops/matchday/models"
	"github.com/bracketops/matchday/repositories"
	"github.com/bracketops/matchday/storage"
)

// In-memory fakes mirroring the Postgres repositories' conditional-update
// semantics, version guard included.

type fakeTournamentRepo struct {
	tournaments map[int]*models.Tournament
}

func (r *fakeTournamentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTournamentRepo) GetBySlug(_ context.Context, _ repositories.SQLExecutor, slug string) (*models.Tournament, error) {
	for _, t := range r.tournaments {
		if t.Slug == slug {
			clone := *t
			return &clone, nil
		}
	}
	return nil, repositories.ErrTournamentNotFound
}

type fakeTeamRepo struct {
	mu    sync.Mutex
	teams map[int]*models.Team

	gamesPlayedFor []int
	winsFor        []int
	lossesFor      []int
}

func (r *fakeTeamRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTeamRepo) GetByIDs(_ context.Context, _ repositories.SQLExecutor, ids []int) ([]*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Team
	for _, id := range ids {
		if t, ok := r.teams[id]; ok {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeTeamRepo) GetBySeeds(_ context.Context, _ repositories.SQLExecutor, tournamentID int, seeds []models.Seed) ([]*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[models.Seed]bool{}
	for _, s := range seeds {
		wanted[s] = true
	}
	var out []*models.Team
	for _, t := range r.teams {
		if t.TournamentID == tournamentID && t.Seed != nil && wanted[*t.Seed] {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeTeamRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Team
	for _, t := range r.teams {
		if t.TournamentID == tournamentID {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeTeamRepo) IncrementGamesPlayed(_ context.Context, _ repositories.SQLExecutor, teamIDs []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gamesPlayedFor = append(r.gamesPlayedFor, teamIDs...)
	for _, id := range teamIDs {
		r.teams[id].GamesPlayed++
	}
	return nil
}

func (r *fakeTeamRepo) IncrementWins(_ context.Context, _ repositories.SQLExecutor, teamIDs []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winsFor = append(r.winsFor, teamIDs...)
	for _, id := range teamIDs {
		r.teams[id].Wins++
	}
	return nil
}

func (r *fakeTeamRepo) IncrementLosses(_ context.Context, _ repositories.SQLExecutor, teamIDs []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lossesFor = append(r.lossesFor, teamIDs...)
	for _, id := range teamIDs {
		r.teams[id].Losses++
	}
	return nil
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[int]*models.Match

	// Hooks run inside the mutators before the version check, used to
	// interleave a competing write between a service's read and its update.
	beforeApply         func()
	beforeMarkCompleted func()
}

func cloneMatch(m *models.Match) *models.Match {
	clone := *m
	if m.Submission != nil {
		sub := *m.Submission
		clone.Submission = &sub
	}
	return &clone
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	match.ID = len(r.matches) + 1
	match.Status = models.MatchStatusScheduled
	match.Version = 1
	match.CreatedAt = time.Now().UTC()
	r.matches[match.ID] = cloneMatch(match)
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return cloneMatch(m), nil
}

func (r *fakeMatchRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int, status *models.MatchStatus) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		out = append(out, cloneMatch(m))
	}
	return out, nil
}

func (r *fakeMatchRepo) ListSubmittedBefore(_ context.Context, _ repositories.SQLExecutor, deadline time.Time) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if m.Status == models.MatchStatusSubmitted && m.TimeDeadline.Before(deadline) {
			out = append(out, cloneMatch(m))
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) ApplySubmission(_ context.Context, _ repositories.SQLExecutor, id, version int, sub *models.MatchSubmission) (bool, error) {
	if r.beforeApply != nil {
		r.beforeApply()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Version != version || m.Status == models.MatchStatusCompleted {
		return false, nil
	}
	subCopy := *sub
	m.Submission = &subCopy
	m.Status = models.MatchStatusSubmitted
	m.Version++
	return true, nil
}

func (r *fakeMatchRepo) UpdateConfirmations(_ context.Context, _ repositories.SQLExecutor, id, version int, seedsConfirmed []models.Seed) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Version != version || m.Status != models.MatchStatusSubmitted {
		return false, nil
	}
	m.Submission.SeedsConfirmed = append([]models.Seed{}, seedsConfirmed...)
	m.Version++
	return true, nil
}

func (r *fakeMatchRepo) MarkCompleted(_ context.Context, _ repositories.SQLExecutor, id, version int, seedsConfirmed []models.Seed, confirmedAt time.Time) (bool, error) {
	if r.beforeMarkCompleted != nil {
		r.beforeMarkCompleted()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Version != version || m.Status != models.MatchStatusSubmitted {
		return false, nil
	}
	m.Status = models.MatchStatusCompleted
	m.Submission.SeedsConfirmed = append([]models.Seed{}, seedsConfirmed...)
	m.TimeConfirmed = &confirmedAt
	m.Version++
	return true, nil
}

func (r *fakeMatchRepo) UpdateForfeits(_ context.Context, _ repositories.SQLExecutor, id, version int, seedsForfeited []models.Seed) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok || m.Version != version || m.Status == models.MatchStatusCompleted {
		return false, nil
	}
	m.SeedsForfeited = append([]models.Seed{}, seedsForfeited...)
	m.Version++
	return true, nil
}

func (r *fakeMatchRepo) stored(t *testing.T, id int) *models.Match {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		t.Fatalf("match %d not in store", id)
	}
	return cloneMatch(m)
}

// recordSink implements RecordService, capturing appended records in order.

type recordSink struct {
	mu      sync.Mutex
	records []*models.Record
	fail    error
}

func (s *recordSink) StoreAndBroadcast(_ context.Context, record *models.Record) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *recordSink) StoreAndBroadcastBatch(_ context.Context, records []*models.Record) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *recordSink) ListByTournament(_ context.Context, tournamentID int) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Record
	for _, r := range s.records {
		if r.TournamentID == tournamentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *recordSink) ArchiveTournament(context.Context, int) (*storage.PutResult, error) {
	return nil, storage.ErrStoreUnconfigured
}

func (s *recordSink) ofType(recordType models.RecordType) []*models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Record
	for _, r := range s.records {
		if r.Type == recordType {
			out = append(out, r)
		}
	}
	return out
}

// standingsSpy implements StandingsService, capturing completed matches.

type standingsSpy struct {
	mu      sync.Mutex
	updates []*models.Match
	fail    error
}

func (s *standingsSpy) UpdateAfterMatch(_ context.Context, match *models.Match, _ []*models.Team) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, match)
	return nil
}

func (s *standingsSpy) ListByTournament(context.Context, int) ([]*models.Team, error) {
	return nil, nil
}

type lifecycleFixture struct {
	tournaments *fakeTournamentRepo
	teams       *fakeTeamRepo
	matches     *fakeMatchRepo
	records     *recordSink
	standings   *standingsSpy
	service     *matchLifecycleService

	tournamentID int
	matchID      int
}

const (
	fixtureRounds   = 2
	fixtureMaxScore = 10
)

func newLifecycleFixture(t *testing.T, teamCount int) *lifecycleFixture {
	t.Helper()

	tournaments := &fakeTournamentRepo{tournaments: map[int]*models.Tournament{
		1: {
			ID:            1,
			Slug:          "spring-open",
			Name:          "Spring Open",
			MatchRounds:   fixtureRounds,
			MatchMaxScore: fixtureMaxScore,
		},
	}}

	teams := &fakeTeamRepo{teams: map[int]*models.Team{}}
	seeds := make([]models.Seed, 0, teamCount)
	for i := 1; i <= teamCount; i++ {
		seed := models.Seed(i)
		teams.teams[i] = &models.Team{
			ID:           i,
			TournamentID: 1,
			Name:         fmt.Sprintf("Team %d", i),
			Seed:         &seed,
		}
		seeds = append(seeds, seed)
	}

	now := time.Now().UTC()
	matches := &fakeMatchRepo{matches: map[int]*models.Match{
		10: {
			ID:           10,
			TournamentID: 1,
			TeamSeeds:    seeds,
			TimeStart:    now.Add(-time.Hour),
			TimeDeadline: now.Add(time.Hour),
			Status:       models.MatchStatusScheduled,
			Version:      1,
			CreatedAt:    now.Add(-2 * time.Hour),
		},
	}}

	records := &recordSink{}
	standings := &standingsSpy{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewMatchLifecycleService(matches, teams, tournaments, records, standings, logger)
	return &lifecycleFixture{
		tournaments:  tournaments,
		teams:        teams,
		matches:      matches,
		records:      records,
		standings:    standings,
		service:      svc.(*matchLifecycleService),
		tournamentID: 1,
		matchID:      10,
	}
}

func player(userID int) models.Principal {
	playerID := userID * 100
	return models.Principal{UserID: userID, PlayerID: &playerID, Role: models.RolePlayer}
}

func admin() models.Principal {
	return models.Principal{UserID: 999, Role: models.RoleAdmin}
}

func (fx *lifecycleFixture) submit(t *testing.T, teamID int, scores [][]models.Score) *models.Match {
	t.Helper()
	match, err := fx.service.Submit(context.Background(), player(teamID), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       teamID,
		Scores:       scores,
	})
	if err != nil {
		t.Fatalf("Submit by team %d: %v", teamID, err)
	}
	return match
}

func (fx *lifecycleFixture) confirm(t *testing.T, teamID int) *models.Match {
	t.Helper()
	match, err := fx.service.Confirm(context.Background(), player(teamID), ConfirmMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       teamID,
	})
	if err != nil {
		t.Fatalf("Confirm by team %d: %v", teamID, err)
	}
	return match
}

func TestSubmitStoresOutcomeAndRecord(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	match := fx.submit(t, 1, [][]models.Score{
		{10, 5},
		{3, 8},
	})

	if match.Status != models.MatchStatusSubmitted {
		t.Fatalf("status = %q, want submitted", match.Status)
	}
	if match.Version != 2 {
		t.Fatalf("version = %d, want 2", match.Version)
	}
	sub := match.Submission
	if sub == nil {
		t.Fatal("submission is nil")
	}
	if sub.SubmitterSeed != 1 {
		t.Fatalf("submitter seed = %d, want 1", sub.SubmitterSeed)
	}
	if sub.WinnerSeed != nil {
		t.Fatalf("winner = %v, want nil for a split-round tie", *sub.WinnerSeed)
	}
	if len(sub.TiedSeeds) != 2 {
		t.Fatalf("tied = %v, want both seeds", sub.TiedSeeds)
	}
	if len(sub.SeedsConfirmed) != 0 {
		t.Fatalf("confirmations = %v, want none right after submit", sub.SeedsConfirmed)
	}

	stored := fx.matches.stored(t, fx.matchID)
	if stored.Status != models.MatchStatusSubmitted || stored.Version != 2 {
		t.Fatalf("stored match status=%q version=%d, want submitted/2", stored.Status, stored.Version)
	}

	submits := fx.records.ofType(models.RecordMatchSubmit)
	if len(submits) != 1 {
		t.Fatalf("got %d submit records, want 1", len(submits))
	}
	if submits[0].MatchID == nil || *submits[0].MatchID != fx.matchID {
		t.Fatalf("submit record match id = %v, want %d", submits[0].MatchID, fx.matchID)
	}
}

func TestSubmitOutsideWindow(t *testing.T) {
	fx := newLifecycleFixture(t, 2)
	fx.matches.matches[fx.matchID].TimeDeadline = time.Now().UTC().Add(-time.Minute)

	_, err := fx.service.Submit(context.Background(), player(1), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
		Scores:       zeroScoreGrid(fixtureRounds, 2),
	})
	if !errors.Is(err, ErrMatchWindowClosed) {
		t.Fatalf("err = %v, want ErrMatchWindowClosed", err)
	}

	// An administrative force bypasses the window.
	_, err = fx.service.Submit(context.Background(), admin(), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
		Scores:       zeroScoreGrid(fixtureRounds, 2),
		Force:        true,
	})
	if err != nil {
		t.Fatalf("forced submit: %v", err)
	}
}

func TestSubmitShapeCheckedEvenUnderForce(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	_, err := fx.service.Submit(context.Background(), admin(), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
		Scores:       [][]models.Score{{1, 2, 3}}, // one round, three columns
		Force:        true,
	})
	if !errors.Is(err, ErrScoreShapeInvalid) {
		t.Fatalf("err = %v, want ErrScoreShapeInvalid", err)
	}
}

func TestSubmitScoreRange(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	over := [][]models.Score{
		{fixtureMaxScore + 1, 0},
		{0, 0},
	}
	_, err := fx.service.Submit(context.Background(), player(1), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
		Scores:       over,
	})
	if !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("err = %v, want ErrScoreOutOfRange", err)
	}

	_, err = fx.service.Submit(context.Background(), admin(), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
		Scores:       over,
		Force:        true,
	})
	if err != nil {
		t.Fatalf("forced out-of-range submit: %v", err)
	}
}

func TestSubmitByOutsiderRejected(t *testing.T) {
	fx := newLifecycleFixture(t, 2)
	outsideSeed := models.Seed(99)
	fx.teams.teams[50] = &models.Team{ID: 50, TournamentID: 2, Name: "Outsiders", Seed: &outsideSeed}

	_, err := fx.service.Submit(context.Background(), player(50), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       50,
		Scores:       zeroScoreGrid(fixtureRounds, 2),
	})
	if !errors.Is(err, ErrTeamNotInMatch) {
		t.Fatalf("err = %v, want ErrTeamNotInMatch", err)
	}
}

func TestSubmitLostRaceIsConflict(t *testing.T) {
	fx := newLifecycleFixture(t, 4)

	// A competing forfeit lands between this submit's read and its write.
	fx.matches.beforeApply = func() {
		fx.matches.mu.Lock()
		fx.matches.matches[fx.matchID].Version++
		fx.matches.mu.Unlock()
	}

	_, err := fx.service.Submit(context.Background(), player(1), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
		Scores:       zeroScoreGrid(fixtureRounds, 4),
	})
	if !errors.Is(err, ErrMatchConflict) {
		t.Fatalf("err = %v, want ErrMatchConflict", err)
	}
}

func TestResubmissionResetsConfirmations(t *testing.T) {
	fx := newLifecycleFixture(t, 4) // quorum 2, one confirmation keeps it submitted

	fx.submit(t, 1, [][]models.Score{
		{9, 1, 1, 1},
		{8, 2, 2, 2},
	})
	fx.confirm(t, 2)

	stored := fx.matches.stored(t, fx.matchID)
	if got := stored.Submission.SeedsConfirmed; len(got) != 1 || got[0] != 2 {
		t.Fatalf("confirmations before re-submit = %v, want [2]", got)
	}

	fx.submit(t, 3, [][]models.Score{
		{1, 1, 9, 1},
		{2, 2, 8, 2},
	})

	stored = fx.matches.stored(t, fx.matchID)
	if stored.Submission.SubmitterSeed != 3 {
		t.Fatalf("submitter = %d, want 3 after re-submit", stored.Submission.SubmitterSeed)
	}
	if len(stored.Submission.SeedsConfirmed) != 0 {
		t.Fatalf("confirmations = %v, want reset by re-submit", stored.Submission.SeedsConfirmed)
	}
	if stored.Submission.WinnerSeed == nil || *stored.Submission.WinnerSeed != 3 {
		t.Fatalf("winner = %v, want seed 3 from the replacing grid", stored.Submission.WinnerSeed)
	}
}

func TestConfirmBelowQuorumStaysSubmitted(t *testing.T) {
	fx := newLifecycleFixture(t, 4) // quorum 2

	fx.submit(t, 1, [][]models.Score{
		{9, 1, 1, 1},
		{8, 2, 2, 2},
	})
	match := fx.confirm(t, 2)

	if match.Status != models.MatchStatusSubmitted {
		t.Fatalf("status = %q, want still submitted below quorum", match.Status)
	}
	if len(fx.standings.updates) != 0 {
		t.Fatal("standings updated before quorum")
	}
}

func TestConfirmQuorumCompletes(t *testing.T) {
	fx := newLifecycleFixture(t, 4) // quorum 2

	fx.submit(t, 1, [][]models.Score{
		{9, 1, 1, 1},
		{8, 2, 2, 2},
	})
	fx.confirm(t, 2)
	match := fx.confirm(t, 3)

	if match.Status != models.MatchStatusCompleted {
		t.Fatalf("status = %q, want completed at quorum", match.Status)
	}
	if match.TimeConfirmed == nil {
		t.Fatal("completed match has no confirmation time")
	}
	if got := match.Submission.SeedsConfirmed; len(got) != 2 {
		t.Fatalf("confirmations = %v, want two at completion", got)
	}

	stored := fx.matches.stored(t, fx.matchID)
	if stored.Status != models.MatchStatusCompleted {
		t.Fatalf("stored status = %q, want completed", stored.Status)
	}

	if len(fx.standings.updates) != 1 {
		t.Fatalf("standings updates = %d, want 1", len(fx.standings.updates))
	}
	if completes := fx.records.ofType(models.RecordMatchComplete); len(completes) != 1 {
		t.Fatalf("complete records = %d, want 1", len(completes))
	}
	// The quorum-reaching confirmation is recorded too.
	if confirms := fx.records.ofType(models.RecordMatchConfirm); len(confirms) != 2 {
		t.Fatalf("confirm records = %d, want 2", len(confirms))
	}
}

func TestTwoTeamMatchCompletesOnFirstConfirm(t *testing.T) {
	fx := newLifecycleFixture(t, 2) // quorum 1

	fx.submit(t, 1, [][]models.Score{
		{9, 1},
		{8, 2},
	})
	match := fx.confirm(t, 2)

	if match.Status != models.MatchStatusCompleted {
		t.Fatalf("status = %q, want completed on the opponent's confirm", match.Status)
	}
}

func TestSubmitterCannotConfirm(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	fx.submit(t, 1, [][]models.Score{
		{9, 1},
		{8, 2},
	})

	_, err := fx.service.Confirm(context.Background(), player(1), ConfirmMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
	})
	if !errors.Is(err, ErrSubmitterCannotConfirm) {
		t.Fatalf("err = %v, want ErrSubmitterCannotConfirm", err)
	}
}

func TestDuplicateConfirmRejected(t *testing.T) {
	fx := newLifecycleFixture(t, 4)

	fx.submit(t, 1, [][]models.Score{
		{9, 1, 1, 1},
		{8, 2, 2, 2},
	})
	fx.confirm(t, 2)

	_, err := fx.service.Confirm(context.Background(), player(2), ConfirmMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
	})
	if !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("err = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestConfirmBeforeSubmit(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	_, err := fx.service.Confirm(context.Background(), player(2), ConfirmMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
	})
	if !errors.Is(err, ErrMatchNotSubmitted) {
		t.Fatalf("err = %v, want ErrMatchNotSubmitted", err)
	}
}

func TestForceRequiresAdmin(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	_, err := fx.service.Submit(context.Background(), player(1), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
		Scores:       zeroScoreGrid(fixtureRounds, 2),
		Force:        true,
	})
	if !errors.Is(err, ErrForceRequiresAdmin) {
		t.Fatalf("err = %v, want ErrForceRequiresAdmin", err)
	}
}

func TestCompleteBelowQuorum(t *testing.T) {
	fx := newLifecycleFixture(t, 4) // quorum 2

	fx.submit(t, 1, [][]models.Score{
		{9, 1, 1, 1},
		{8, 2, 2, 2},
	})

	_, err := fx.service.Complete(context.Background(), player(2), CompleteMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2, // counts as one confirmation, still one short
	})
	if !errors.Is(err, ErrQuorumNotReached) {
		t.Fatalf("err = %v, want ErrQuorumNotReached", err)
	}

	match, err := fx.service.Complete(context.Background(), admin(), CompleteMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		Force:        true,
	})
	if err != nil {
		t.Fatalf("forced complete: %v", err)
	}
	if match.Status != models.MatchStatusCompleted {
		t.Fatalf("status = %q, want completed", match.Status)
	}
}

func TestCompletedMatchIsTerminal(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	fx.submit(t, 1, [][]models.Score{
		{9, 1},
		{8, 2},
	})
	fx.confirm(t, 2)

	// Even a forced administrative submit cannot reopen a completed match.
	_, err := fx.service.Submit(context.Background(), admin(), SubmitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       1,
		Scores:       zeroScoreGrid(fixtureRounds, 2),
		Force:        true,
	})
	if !errors.Is(err, ErrMatchAlreadyCompleted) {
		t.Fatalf("submit err = %v, want ErrMatchAlreadyCompleted", err)
	}

	_, err = fx.service.Forfeit(context.Background(), player(2), ForfeitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
	})
	if !errors.Is(err, ErrMatchAlreadyCompleted) {
		t.Fatalf("forfeit err = %v, want ErrMatchAlreadyCompleted", err)
	}
}

func TestCompletionLostWriteIsCorruption(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	fx.submit(t, 1, [][]models.Score{
		{9, 1},
		{8, 2},
	})
	fx.matches.beforeMarkCompleted = func() {
		fx.matches.mu.Lock()
		fx.matches.matches[fx.matchID].Version++
		fx.matches.mu.Unlock()
	}

	_, err := fx.service.Confirm(context.Background(), player(2), ConfirmMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
	})
	if !errors.Is(err, ErrMatchStateCorrupted) {
		t.Fatalf("err = %v, want ErrMatchStateCorrupted", err)
	}
}

func TestStandingsFailureDoesNotUndoCompletion(t *testing.T) {
	fx := newLifecycleFixture(t, 2)
	fx.standings.fail = errors.New("standings store down")

	fx.submit(t, 1, [][]models.Score{
		{9, 1},
		{8, 2},
	})
	match := fx.confirm(t, 2)

	if match.Status != models.MatchStatusCompleted {
		t.Fatalf("status = %q, want completed despite standings failure", match.Status)
	}
	stored := fx.matches.stored(t, fx.matchID)
	if stored.Status != models.MatchStatusCompleted {
		t.Fatalf("stored status = %q, want completed", stored.Status)
	}
}

func TestForfeitRecordsAndVersions(t *testing.T) {
	fx := newLifecycleFixture(t, 3)

	match, err := fx.service.Forfeit(context.Background(), player(2), ForfeitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
	})
	if err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if !match.HasForfeited(2) {
		t.Fatal("seed 2 not marked forfeited")
	}
	if match.Status != models.MatchStatusScheduled {
		t.Fatalf("status = %q, a forfeit alone must not submit the match", match.Status)
	}
	if forfeits := fx.records.ofType(models.RecordMatchForfeit); len(forfeits) != 1 {
		t.Fatalf("forfeit records = %d, want 1", len(forfeits))
	}

	_, err = fx.service.Forfeit(context.Background(), player(2), ForfeitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
	})
	if !errors.Is(err, ErrAlreadyForfeited) {
		t.Fatalf("second forfeit err = %v, want ErrAlreadyForfeited", err)
	}
}

func TestForfeitAfterSubmission(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	fx.submit(t, 1, [][]models.Score{
		{9, 1},
		{8, 2},
	})

	_, err := fx.service.Forfeit(context.Background(), player(2), ForfeitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
	})
	if !errors.Is(err, ErrMatchAlreadySubmitted) {
		t.Fatalf("err = %v, want ErrMatchAlreadySubmitted", err)
	}
}

func TestForfeitCascadeQueuesWalkover(t *testing.T) {
	fx := newLifecycleFixture(t, 3)
	ctx := context.Background()

	if _, err := fx.service.Forfeit(ctx, player(2), ForfeitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
		GiveWin:      true,
	}); err != nil {
		t.Fatalf("first forfeit: %v", err)
	}
	if len(fx.service.autoSubmit) != 0 {
		t.Fatal("walkover queued before the cascade completes")
	}

	if _, err := fx.service.Forfeit(ctx, player(3), ForfeitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       3,
		GiveWin:      true,
	}); err != nil {
		t.Fatalf("second forfeit: %v", err)
	}

	select {
	case task := <-fx.service.autoSubmit:
		if task.TeamID != 1 {
			t.Fatalf("queued team = %d, want the remaining team 1", task.TeamID)
		}
		fx.service.runAutoSubmit(ctx, task)
	default:
		t.Fatal("no walkover task queued after the last opponent forfeited")
	}

	stored := fx.matches.stored(t, fx.matchID)
	if stored.Status != models.MatchStatusSubmitted {
		t.Fatalf("status = %q, want submitted by the walkover", stored.Status)
	}
	sub := stored.Submission
	if !sub.IsForfeit {
		t.Fatal("walkover submission not flagged as forfeit")
	}
	if sub.WinnerSeed == nil || *sub.WinnerSeed != 1 {
		t.Fatalf("winner = %v, want the remaining seed 1", sub.WinnerSeed)
	}
	if len(sub.LoserSeeds) != 2 {
		t.Fatalf("losers = %v, want both forfeited seeds", sub.LoserSeeds)
	}
	if sub.SubmitterSeed != 1 {
		t.Fatalf("submitter = %d, want the remaining seed", sub.SubmitterSeed)
	}
}

func TestForfeitWithoutGiveWinDoesNotCascade(t *testing.T) {
	fx := newLifecycleFixture(t, 2)

	if _, err := fx.service.Forfeit(context.Background(), player(2), ForfeitMatchInput{
		TournamentID: fx.tournamentID,
		MatchID:      fx.matchID,
		TeamID:       2,
	}); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if len(fx.service.autoSubmit) != 0 {
		t.Fatal("walkover queued without give_win")
	}
}

func TestDeadlineResolverCompletesConfirmedMatches(t *testing.T) {
	fx := newLifecycleFixture(t, 4) // quorum 2

	fx.submit(t, 1, [][]models.Score{
		{9, 1, 1, 1},
		{8, 2, 2, 2},
	})
	fx.confirm(t, 2)

	// Push the reporting deadline into the past so the sweep picks it up.
	fx.matches.mu.Lock()
	fx.matches.matches[fx.matchID].TimeDeadline = time.Now().UTC().Add(-48 * time.Hour)
	fx.matches.mu.Unlock()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := NewDeadlineResolver(fx.matches, fx.service, 24*time.Hour, logger)
	if err := resolver.ResolveExpired(context.Background()); err != nil {
		t.Fatalf("ResolveExpired: %v", err)
	}

	stored := fx.matches.stored(t, fx.matchID)
	if stored.Status != models.MatchStatusCompleted {
		t.Fatalf("status = %q, want completed by the resolver", stored.Status)
	}
}

func TestDeadlineResolverLeavesUnconfirmedMatches(t *testing.T) {
	fx := newLifecycleFixture(t, 4)

	fx.submit(t, 1, [][]models.Score{
		{9, 1, 1, 1},
		{8, 2, 2, 2},
	})

	fx.matches.mu.Lock()
	fx.matches.matches[fx.matchID].TimeDeadline = time.Now().UTC().Add(-48 * time.Hour)
	fx.matches.mu.Unlock()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := NewDeadlineResolver(fx.matches, fx.service, 24*time.Hour, logger)
	if err := resolver.ResolveExpired(context.Background()); err != nil {
		t.Fatalf("ResolveExpired: %v", err)
	}

	stored := fx.matches.stored(t, fx.matchID)
	if stored.Status != models.MatchStatusSubmitted {
		t.Fatalf("status = %q, a match nobody confirmed must be left for the organizer", stored.Status)
	}
}
