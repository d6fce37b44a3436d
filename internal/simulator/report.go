package simulator

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/statistics"
)

// Report summarises a simulation run
type Report struct {
	Policy    string
	Players   int
	Rounds    int // Rounds per player
	Seed      int64
	PoolStart ledger.Amount
	PoolEnd   ledger.Amount
	Wagered   ledger.Amount // Everything players paid in, raises included
	Paid      ledger.Amount // Everything withdrawn back to players
	Refused   int           // Rounds not played because the pool was exhausted
	Stats     *statistics.Statistics
	Elapsed   time.Duration
}

// HouseProfit is how much the pool grew over the run
func (r *Report) HouseProfit() int64 {
	return int64(r.PoolEnd) - int64(r.PoolStart)
}

// Validate checks the pool moved by exactly what the players lost
func (r *Report) Validate() error {
	players := int64(r.Wagered) - int64(r.Paid)
	if players != r.HouseProfit() {
		return fmt.Errorf("pool drift %d does not match player losses %d", r.HouseProfit(), players)
	}
	return nil
}

// Render formats the report for a terminal
func (r *Report) Render(styles *game.DisplayStyles) string {
	var b strings.Builder
	stats := r.Stats
	if stats == nil {
		stats = &statistics.Statistics{}
	}

	b.WriteString(styles.Header.Render("Simulation Results"))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Policy:   %s\n", r.Policy)
	fmt.Fprintf(&b, "Players:  %d x %d rounds (seed %d)\n", r.Players, r.Rounds, r.Seed)
	fmt.Fprintf(&b, "Played:   %d rounds in %v\n", stats.Rounds, r.Elapsed.Round(time.Millisecond))
	if r.Refused > 0 {
		fmt.Fprintf(&b, "Refused:  %s\n", styles.Loser.Render(fmt.Sprintf("%d rounds, pool exhausted", r.Refused)))
	}
	b.WriteString("\n")

	b.WriteString(styles.SubHeader.Render("Pool"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Start:   %s\n", styles.Amount.Render(fmt.Sprintf("%d", r.PoolStart)))
	fmt.Fprintf(&b, "  End:     %s\n", styles.Amount.Render(fmt.Sprintf("%d", r.PoolEnd)))
	fmt.Fprintf(&b, "  Wagered: %d\n", r.Wagered)
	profit := fmt.Sprintf("%+d", r.HouseProfit())
	if r.HouseProfit() >= 0 {
		profit = styles.Winner.Render(profit)
	} else {
		profit = styles.Loser.Render(profit)
	}
	fmt.Fprintf(&b, "  House:   %s\n\n", profit)

	b.WriteString(styles.SubHeader.Render("Outcomes"))
	b.WriteString("\n")
	for _, name := range []string{
		statistics.OutcomeWon,
		statistics.OutcomeLost,
		statistics.OutcomeTied,
		statistics.OutcomeSurrendered,
	} {
		o := stats.Outcomes[name]
		fmt.Fprintf(&b, "  %-12s %6d  %5.1f%%\n", name, o.Rounds, stats.Rate(name)*100)
	}
	fmt.Fprintf(&b, "  %-12s %6d\n", "busted", stats.Busts)
	fmt.Fprintf(&b, "  %-12s %6d  %+.3f/round\n", "doubled", stats.Doubled, perRound(stats.DoubledNet, stats.Doubled))
	fmt.Fprintf(&b, "  %-12s %6d  %+.3f/round\n\n", "split", stats.Splits, perRound(stats.SplitNet, stats.Splits))

	b.WriteString(styles.SubHeader.Render("Player Result (wagers per round)"))
	b.WriteString("\n")
	low, high := stats.ConfidenceInterval95()
	fmt.Fprintf(&b, "  Mean:    %+.4f ± %.4f\n", stats.Mean(), stats.StdError())
	fmt.Fprintf(&b, "  95%% CI:  [%+.4f, %+.4f]\n", low, high)
	fmt.Fprintf(&b, "  StdDev:  %.4f\n", stats.StdDev())
	fmt.Fprintf(&b, "  Median:  %+.2f\n", stats.Median())
	fmt.Fprintf(&b, "  Edge:    %s\n", styles.Action.Render(fmt.Sprintf("%.2f%% to the house", stats.HouseEdge()*100)))

	return b.String()
}

func perRound(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
