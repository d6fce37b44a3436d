package rules

import "github.com/lox/vrfjack/internal/deck"

// DealerStandsOn is the score at which the dealer stops drawing
const DealerStandsOn = 17

// DealerPlays draws cards for the dealer until its highest valid score reaches
// 17. Running out of cards ends the dealer's turn early. The returned hand
// shares no storage with dealer.
func DealerPlays(dealer Hand, d *deck.Deck) Hand {
	hand := dealer.Clone()
	for HighestValidScore(hand) < DealerStandsOn {
		card, err := d.Draw()
		if err != nil {
			break
		}
		hand = append(hand, card)
	}
	return hand
}
