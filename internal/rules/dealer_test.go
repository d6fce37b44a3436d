package rules

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/vrfjack/internal/deck"
)

func TestDealerStandsAtSeventeenOrMore(t *testing.T) {
	d := deck.New()
	dealer := hand("8d Jc")

	after := DealerPlays(dealer, d)
	assert.Equal(t, dealer, after)
	assert.Equal(t, deck.Size, d.Len(), "no card should be drawn")
}

func TestDealerStandsOnSoftSeventeen(t *testing.T) {
	d := deck.New()
	after := DealerPlays(hand("Ah 6c"), d)
	assert.Len(t, after, 2)
}

func TestDealerDrawsUntilSeventeen(t *testing.T) {
	d := deck.New()
	require.NoError(t, d.Shuffle(big.NewInt(0)))

	dealer := hand("2d")
	after := DealerPlays(dealer, d)
	assert.Greater(t, len(after), len(dealer))
	assert.GreaterOrEqual(t, HighestValidScore(after), DealerStandsOn)
	assert.Equal(t, deck.Size-(len(after)-len(dealer)), d.Len())
	assert.Len(t, dealer, 1, "input hand must not grow")
}

func TestDealerDrawsFromTheEnd(t *testing.T) {
	// next card drawn is the last one: 5h then 2c
	d := deck.NewFromCards(deck.MustParseCards("Kc 2c 5h"))
	after := DealerPlays(hand("Tc"), d)
	assert.Equal(t, hand("Tc 5h 2c"), after)
	assert.Equal(t, 1, d.Len())
}

func TestDealerStopsOnExhaustedDeck(t *testing.T) {
	d := deck.NewFromCards(deck.MustParseCards("2c 2d"))
	after := DealerPlays(hand("3c"), d)
	assert.Equal(t, hand("3c 2d 2c"), after)
	assert.True(t, d.IsEmpty())

	assert.NotPanics(t, func() {
		DealerPlays(hand("3c"), nil)
	})
}
