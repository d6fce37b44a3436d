package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/history"
)

// HistoryCmd renders rounds recorded by the file sink
type HistoryCmd struct {
	Account string `arg:"" help:"Account whose rounds to show"`
	Dir     string `default:"rounds" type:"path" help:"History directory"`
	Limit   int    `help:"Show only the most recent rounds (0 = all)"`
}

func (c *HistoryCmd) Run() error {
	return c.render(os.Stdout, game.NewDisplayStyles())
}

func (c *HistoryCmd) render(out io.Writer, styles *game.DisplayStyles) error {
	rounds, err := history.LoadRounds(c.Dir, c.Account)
	if err != nil {
		return err
	}
	if len(rounds) == 0 {
		return fmt.Errorf("no rounds recorded for %s in %s", c.Account, c.Dir)
	}
	if c.Limit > 0 && c.Limit < len(rounds) {
		rounds = rounds[len(rounds)-c.Limit:]
	}

	var b strings.Builder
	b.WriteString(styles.Header.Render(fmt.Sprintf("Rounds for %s", c.Account)))
	b.WriteString("\n\n")

	var wagered, returned uint64
	for _, r := range rounds {
		wagered += r.Wager
		returned += r.Proceeds
		renderRound(&b, styles, r)
	}

	b.WriteString(styles.Separator.Render(strings.Repeat("─", 40)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%d rounds, opening wagers %d, returned %s\n",
		len(rounds), wagered, styles.Amount.Render(fmt.Sprint(returned)))

	_, err = io.WriteString(out, b.String())
	return err
}

func renderRound(b *strings.Builder, styles *game.DisplayStyles, r *history.Round) {
	fmt.Fprintf(b, "%s  %s  wager %d\n",
		styles.SubHeader.Render(r.ID), r.Resolved.Format("2006-01-02 15:04:05"), r.Wager)
	fmt.Fprintf(b, "  dealt   %s vs %s\n", strings.Join(r.InitialPlayer, " "), strings.Join(r.InitialDealer, " "))
	if len(r.Actions) > 0 {
		fmt.Fprintf(b, "  actions %s\n", styles.Action.Render(strings.Join(r.Actions, ", ")))
	}
	if len(r.FinalPlayer) > 0 {
		fmt.Fprintf(b, "  final   %s (%d) vs %s (%d)\n",
			strings.Join(r.FinalPlayer, " "), r.PlayerScore,
			strings.Join(r.FinalDealer, " "), r.DealerScore)
	}

	outcome := r.Outcome
	if outcome == "" {
		outcome = "unresolved"
	}
	style := styles.Loser
	if outcome == game.OutcomeWon.String() {
		style = styles.Winner
	}
	fmt.Fprintf(b, "  %s, proceeds %s\n\n", style.Render(outcome), styles.Amount.Render(fmt.Sprint(r.Proceeds)))
}
