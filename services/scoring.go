package services

import (
	"sort"

	"github.com/bracketops/matchday/models"
)

// Round-point values. A round won outright is worth more than a round shared
// between several teams, so clean wins dominate split rounds over a match.
const (
	outrightRoundPoints = 3
	sharedRoundPoints   = 1
)

// ComputeOutcome decides a match from its raw score grid. rounds is indexed
// [round][team] with columns aligned to teamSeeds. Exactly one of the results
// holds: a single winner, a non-empty tied set, or every seed in lost (which
// cannot happen — an all-way tie surfaces as tied covering all seeds).
//
// Per round the maximum score wins; a sole round winner collects 3
// round-points, a shared maximum gives every round winner 1 point. The
// seed(s) with the highest total take the match. The function is pure and
// deterministic: output slices are sorted ascending.
func ComputeOutcome(teamSeeds []models.Seed, rounds [][]models.Score) (winner *models.Seed, tied []models.Seed, lost []models.Seed) {
	points := make([]int, len(teamSeeds))

	for _, round := range rounds {
		maxScore := round[0]
		for _, score := range round[1:] {
			if score > maxScore {
				maxScore = score
			}
		}

		var roundWinners []int
		for i, score := range round {
			if score == maxScore {
				roundWinners = append(roundWinners, i)
			}
		}

		award := sharedRoundPoints
		if len(roundWinners) == 1 {
			award = outrightRoundPoints
		}
		for _, i := range roundWinners {
			points[i] += award
		}
	}

	maxPoints := points[0]
	for _, p := range points[1:] {
		if p > maxPoints {
			maxPoints = p
		}
	}

	var top []models.Seed
	for i, p := range points {
		if p == maxPoints {
			top = append(top, teamSeeds[i])
		} else {
			lost = append(lost, teamSeeds[i])
		}
	}

	sortSeeds(top)
	sortSeeds(lost)

	if len(top) == 1 {
		winner = &top[0]
		return winner, nil, lost
	}
	return nil, top, lost
}

func sortSeeds(seeds []models.Seed) {
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
}

// zeroScoreGrid builds the all-zero grid used for forfeit auto-submissions.
func zeroScoreGrid(roundCount, teamCount int) [][]models.Score {
	grid := make([][]models.Score, roundCount)
	for i := range grid {
		grid[i] = make([]models.Score, teamCount)
	}
	return grid
}
