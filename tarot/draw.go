package tarot

import (
	"math/rand/v2"

	"tarot-backend/models"
)

// ReversedProbability is the chance of each drawn card being reversed
const ReversedProbability = 0.3

// Source is the randomness a draw consumes; *rand.Rand satisfies it
type Source interface {
	IntN(n int) int
	Float64() float64
}

type globalSource struct{}

func (globalSource) IntN(n int) int   { return rand.IntN(n) }
func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource draws from the process-wide generator
var DefaultSource Source = globalSource{}

// Draw deals one card per spread position, uniformly without replacement,
// each reversed independently with ReversedProbability.
func Draw(src Source) []models.DrawnCard {
	if src == nil {
		src = DefaultSource
	}

	pool := Deck()
	drawn := make([]models.DrawnCard, 0, len(models.SpreadPositions))
	for i, pos := range models.SpreadPositions {
		// partial Fisher-Yates
		j := i + src.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]

		drawn = append(drawn, models.DrawnCard{
			TarotCard:  pool[i],
			IsReversed: src.Float64() < ReversedProbability,
			Position:   pos,
		})
	}
	return drawn
}
