package services

import (
	"reflect"
	"testing"

	"github.com/bracketops/matchday/models"
)

func seedsEqual(t *testing.T, name string, got, want []models.Seed) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestComputeOutcomeSoleRoundWinner(t *testing.T) {
	seeds := []models.Seed{1, 2, 3}
	rounds := [][]models.Score{{5, 3, 3}}

	winner, tied, lost := ComputeOutcome(seeds, rounds)
	if winner == nil || *winner != 1 {
		t.Fatalf("winner = %v, want seed 1", winner)
	}
	seedsEqual(t, "tied", tied, nil)
	seedsEqual(t, "lost", lost, []models.Seed{2, 3})
}

func TestComputeOutcomeSharedRoundSplitsPoints(t *testing.T) {
	// Seeds 1 and 2 share the round at 4, each collecting a single
	// round-point; neither beats the other so the match is tied.
	seeds := []models.Seed{1, 2, 3}
	rounds := [][]models.Score{{4, 4, 2}}

	winner, tied, lost := ComputeOutcome(seeds, rounds)
	if winner != nil {
		t.Fatalf("winner = %v, want nil", *winner)
	}
	seedsEqual(t, "tied", tied, []models.Seed{1, 2})
	seedsEqual(t, "lost", lost, []models.Seed{3})
}

func TestComputeOutcomeSplitRoundsTie(t *testing.T) {
	// Each team takes one round outright: 3 points apiece, tied match.
	seeds := []models.Seed{1, 2}
	rounds := [][]models.Score{
		{10, 5},
		{3, 8},
	}

	winner, tied, lost := ComputeOutcome(seeds, rounds)
	if winner != nil {
		t.Fatalf("winner = %v, want nil", *winner)
	}
	seedsEqual(t, "tied", tied, []models.Seed{1, 2})
	seedsEqual(t, "lost", lost, nil)
}

func TestComputeOutcomeOutrightBeatsShared(t *testing.T) {
	// Seed 2 wins round two alone (3 points); seeds 1 and 2 share round
	// one (1 point each). Seed 2 finishes on 4 against 1.
	seeds := []models.Seed{1, 2}
	rounds := [][]models.Score{
		{7, 7},
		{2, 9},
	}

	winner, tied, lost := ComputeOutcome(seeds, rounds)
	if winner == nil || *winner != 2 {
		t.Fatalf("winner = %v, want seed 2", winner)
	}
	seedsEqual(t, "tied", tied, nil)
	seedsEqual(t, "lost", lost, []models.Seed{1})
}

func TestComputeOutcomeAllEqualIsAllWayTie(t *testing.T) {
	seeds := []models.Seed{3, 1, 2}
	rounds := [][]models.Score{
		{0, 0, 0},
		{0, 0, 0},
	}

	winner, tied, lost := ComputeOutcome(seeds, rounds)
	if winner != nil {
		t.Fatalf("winner = %v, want nil", *winner)
	}
	seedsEqual(t, "tied", tied, []models.Seed{1, 2, 3})
	seedsEqual(t, "lost", lost, nil)
}

func TestComputeOutcomePartitionsAllSeeds(t *testing.T) {
	seeds := []models.Seed{4, 7, 2, 9}
	rounds := [][]models.Score{
		{3, 9, 1, 9},
		{5, 0, 5, 2},
		{8, 8, 8, 8},
	}

	winner, tied, lost := ComputeOutcome(seeds, rounds)

	var outcome []models.Seed
	if winner != nil {
		outcome = append(outcome, *winner)
	}
	outcome = append(outcome, tied...)
	outcome = append(outcome, lost...)
	if len(outcome) != len(seeds) {
		t.Fatalf("outcome covers %d seeds, want %d", len(outcome), len(seeds))
	}

	seen := map[models.Seed]bool{}
	for _, s := range outcome {
		if seen[s] {
			t.Fatalf("seed %d appears in more than one outcome bucket", s)
		}
		seen[s] = true
	}
	for _, s := range seeds {
		if !seen[s] {
			t.Fatalf("seed %d missing from outcome", s)
		}
	}
}

func TestComputeOutcomeDeterministic(t *testing.T) {
	seeds := []models.Seed{1, 2, 3}
	rounds := [][]models.Score{
		{6, 6, 1},
		{2, 5, 5},
		{9, 0, 9},
	}

	firstWinner, firstTied, firstLost := ComputeOutcome(seeds, rounds)
	for i := 0; i < 10; i++ {
		winner, tied, lost := ComputeOutcome(seeds, rounds)
		if (winner == nil) != (firstWinner == nil) ||
			(winner != nil && *winner != *firstWinner) {
			t.Fatalf("run %d: winner %v differs from first run %v", i, winner, firstWinner)
		}
		seedsEqual(t, "tied", tied, firstTied)
		seedsEqual(t, "lost", lost, firstLost)
	}
}

func TestApplyForfeitsSoleSurvivorWins(t *testing.T) {
	// All-zero walkover grid ties everyone; the forfeit filter hands the
	// match to the one team that did not forfeit.
	seeds := []models.Seed{1, 2, 3}
	winner, tied, lost := ComputeOutcome(seeds, zeroScoreGrid(2, 3))
	if winner != nil || len(tied) != 3 {
		t.Fatalf("precondition: want all-way tie, got winner=%v tied=%v", winner, tied)
	}

	winner, tied, lost = applyForfeits(winner, tied, lost, []models.Seed{1, 3})
	if winner == nil || *winner != 2 {
		t.Fatalf("winner = %v, want seed 2", winner)
	}
	seedsEqual(t, "tied", tied, nil)
	seedsEqual(t, "lost", lost, []models.Seed{1, 3})
}

func TestApplyForfeitsForfeitedWinnerDropsToLosers(t *testing.T) {
	seeds := []models.Seed{1, 2}
	rounds := [][]models.Score{
		{9, 2},
		{8, 1},
	}
	winner, tied, lost := ComputeOutcome(seeds, rounds)
	if winner == nil || *winner != 1 {
		t.Fatalf("precondition: want seed 1 winning, got %v", winner)
	}

	// The filter never promotes a team out of the losing bucket, so a
	// grid scored in the forfeiter's favor leaves the match with no
	// winner at all.
	winner, tied, lost = applyForfeits(winner, tied, lost, []models.Seed{1})
	if winner != nil {
		t.Fatalf("winner = %v, want nil", *winner)
	}
	seedsEqual(t, "tied", tied, nil)
	seedsEqual(t, "lost", lost, []models.Seed{1, 2})
}

func TestApplyForfeitsFiltersTiedPool(t *testing.T) {
	seeds := []models.Seed{1, 2, 3}
	winner, tied, lost := ComputeOutcome(seeds, zeroScoreGrid(1, 3))

	winner, tied, lost = applyForfeits(winner, tied, lost, []models.Seed{3})
	if winner != nil {
		t.Fatalf("winner = %v, want nil with two survivors", *winner)
	}
	seedsEqual(t, "tied", tied, []models.Seed{1, 2})
	seedsEqual(t, "lost", lost, []models.Seed{3})
}
