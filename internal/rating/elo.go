// Package rating computes Elo deltas for finished matches.
package rating

import "math"

const (
	// KFactor is the standard adjustment factor applied to every game.
	KFactor = 32
	// Floor is the minimum rating a player can fall to.
	Floor = 100
	// Default is the rating a player starts with.
	Default = 1200
)

// Result is a player's score in a finished match.
type Result float64

const (
	Win  Result = 1.0
	Loss Result = 0.0
	Draw Result = 0.5
)

// Delta returns the rating change for a player rated `rating` against an
// opponent rated `opponent`, given the player's result.
func Delta(rating, opponent int, result Result) int {
	expected := 1 / (1 + math.Pow(10, float64(opponent-rating)/400))
	return int(math.Round(KFactor * (float64(result) - expected)))
}

// Apply clamps a rating change to the floor.
func Apply(rating, delta int) int {
	r := rating + delta
	if r < Floor {
		return Floor
	}
	return r
}
