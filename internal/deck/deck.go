package deck

import (
	"fmt"
	"math/rand"

	"github.com/flipmatch/flipmatch/internal/models"
)

// ImagePoolSize is the number of distinct card images available. A board
// can never need more than ImagePoolSize pairs.
const ImagePoolSize = 21

// imagePool returns the value pool, one entry per distinct pair image.
func imagePool() []string {
	pool := make([]string, ImagePoolSize)
	for i := range pool {
		pool[i] = fmt.Sprintf("/images/%d.jpeg", i+1)
	}
	return pool
}

// Generate builds a shuffled board of count cards: count/2 distinct values,
// each appearing exactly twice. Both the value selection and the final card
// order are Fisher-Yates shuffled with the supplied source, so tests can
// pass a seeded *rand.Rand for deterministic boards.
func Generate(count models.CardCount, rng *rand.Rand) ([]models.Card, error) {
	if !count.Valid() {
		return nil, fmt.Errorf("unsupported card count %d", count)
	}
	pairs := int(count) / 2
	if pairs > ImagePoolSize {
		return nil, fmt.Errorf("card count %d needs %d pairs, only %d images available", count, pairs, ImagePoolSize)
	}

	values := imagePool()
	rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})

	cards := make([]models.Card, 0, int(count))
	for i := 0; i < pairs; i++ {
		value := values[i]
		cards = append(cards,
			models.Card{ID: fmt.Sprintf("card-%d-1", i), Value: value},
			models.Card{ID: fmt.Sprintf("card-%d-2", i), Value: value},
		)
	}

	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})

	return cards, nil
}
