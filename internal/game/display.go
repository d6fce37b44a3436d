package game

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/rules"
)

// DisplayStyles contains styling for terminal output
type DisplayStyles struct {
	Header    lipgloss.Style
	SubHeader lipgloss.Style
	Action    lipgloss.Style
	Winner    lipgloss.Style
	Loser     lipgloss.Style
	CardRed   lipgloss.Style
	CardBlack lipgloss.Style
	Amount    lipgloss.Style
	Separator lipgloss.Style
}

// NewDisplayStyles creates a new set of display styles
func NewDisplayStyles() *DisplayStyles {
	return &DisplayStyles{
		Header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 2).
			Bold(true),
		SubHeader: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true),
		Action: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#74B9FF")),
		Winner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")).
			Bold(true),
		Loser: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")),
		CardRed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true),
		CardBlack: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true),
		Amount: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")).
			Bold(true),
		Separator: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")),
	}
}

// EventFormatter renders events as single terminal lines
type EventFormatter struct {
	styles *DisplayStyles
	color  bool
}

// NewEventFormatter creates a formatter. Without color the output is plain
// text, which is what tests and log files want.
func NewEventFormatter(color bool) *EventFormatter {
	return &EventFormatter{styles: NewDisplayStyles(), color: color}
}

// Styles returns the styles in use
func (f *EventFormatter) Styles() *DisplayStyles {
	return f.styles
}

func (f *EventFormatter) render(style lipgloss.Style, s string) string {
	if !f.color {
		return s
	}
	return style.Render(s)
}

// FormatCard renders a card with its suit symbol
func (f *EventFormatter) FormatCard(c deck.Card) string {
	text := c.Rank.String() + c.Suit.Symbol()
	if c.Suit.IsRed() {
		return f.render(f.styles.CardRed, text)
	}
	return f.render(f.styles.CardBlack, text)
}

// FormatHand renders the cards of a hand followed by its highest valid score
func (f *EventFormatter) FormatHand(h rules.Hand) string {
	if len(h) == 0 {
		return "[]"
	}
	cards := make([]string, len(h))
	for i, c := range h {
		cards[i] = f.FormatCard(c)
	}
	return fmt.Sprintf("[%s] (%d)", strings.Join(cards, " "), rules.HighestValidScore(h))
}

// Format renders any engine event
func (f *EventFormatter) Format(event GameEvent) string {
	switch e := event.(type) {
	case GameFundedEvent:
		return fmt.Sprintf("%s funds %s", e.Account, f.render(f.styles.Amount, fmt.Sprint(e.Amount)))
	case RequestedRandomWordEvent:
		return fmt.Sprintf("%s requests seed #%d for round %s", e.Account, e.RequestID, e.Round)
	case GameDealtEvent:
		return fmt.Sprintf("%s dealt %s vs dealer %s", e.Account, f.FormatHand(e.PlayerHand), f.FormatHand(e.DealerHand))
	case GameHitEvent:
		return fmt.Sprintf("%s %s %s", e.Account, f.render(f.styles.Action, "hits"), f.FormatCard(e.Card))
	case GameDoubledDownEvent:
		return fmt.Sprintf("%s %s for %d", e.Account, f.render(f.styles.Action, "doubles down"), e.Paid)
	case GameSplitEvent:
		return fmt.Sprintf("%s %s to %s", e.Account, f.render(f.styles.Action, "splits"), f.FormatHand(e.PlayerHand))
	case GameResolvedEvent:
		style := f.styles.Loser
		if e.Outcome == OutcomeWon {
			style = f.styles.Winner
		}
		line := fmt.Sprintf("%s %s", e.Account, f.render(style, e.Outcome.String()))
		if len(e.PlayerHand) > 0 {
			line += fmt.Sprintf(" %s vs %s", f.FormatHand(e.PlayerHand), f.FormatHand(e.DealerHand))
		}
		return line + fmt.Sprintf(", proceeds %s", f.render(f.styles.Amount, fmt.Sprint(e.Proceeds)))
	case PlayerWithdrawEvent:
		return fmt.Sprintf("%s withdraws %s", e.Account, f.render(f.styles.Amount, fmt.Sprint(e.Amount)))
	case OwnerWithdrawEvent:
		return fmt.Sprintf("owner %s withdraws %d, pool %d", e.Owner, e.Amount, e.Pool)
	case CollateralDepositedEvent:
		return fmt.Sprintf("owner %s deposits %d, pool %d", e.Owner, e.Amount, e.Pool)
	default:
		return event.EventType().String()
	}
}
