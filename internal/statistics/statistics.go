package statistics

import (
	"fmt"
	"math"
	"sort"
)

// Outcome names as reported by the engine
const (
	OutcomeWon         = "won"
	OutcomeLost        = "lost"
	OutcomeTied        = "tied"
	OutcomeSurrendered = "surrendered"
)

var outcomes = []string{OutcomeWon, OutcomeLost, OutcomeTied, OutcomeSurrendered}

// RoundResult represents the outcome of a single blackjack round
type RoundResult struct {
	Net     float64 // Net result in opening wagers (+1 for a plain win)
	Outcome string  // won, lost, tied or surrendered
	Doubled bool    // Wager was doubled down
	Split   bool    // Pair was split
	Busted  bool    // Player went over 21
	Seed    int64   // Seed of the simulation the round came from
}

// OutcomeStats tracks rounds ending one way
type OutcomeStats struct {
	Rounds int
	SumNet float64
}

// Statistics tracks blackjack simulation results from the player's side
type Statistics struct {
	Rounds  int
	SumNet  float64
	SumNet2 float64   // Sum of squares for variance calculation
	Values  []float64 // Store all values for median/percentile calculation

	Outcomes map[string]OutcomeStats

	Doubled    int
	DoubledNet float64
	Splits     int
	SplitNet   float64
	Busts      int

	AllNet float64 // Total for sanity check against the outcome buckets
}

// Mean returns the player's expected result per round in wagers
func (s *Statistics) Mean() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.SumNet / float64(s.Rounds)
}

// HouseEdge returns the house's expected take per wagered unit
func (s *Statistics) HouseEdge() float64 {
	return -s.Mean()
}

// Variance returns the sample variance of all results
func (s *Statistics) Variance() float64 {
	if s.Rounds < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumNet2 - float64(s.Rounds)*mean*mean) / float64(s.Rounds-1)
}

// StdDev returns the sample standard deviation of all results
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Rounds))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// Add incorporates a round result
func (s *Statistics) Add(result RoundResult) {
	net := result.Net
	s.Rounds++
	s.SumNet += net
	s.SumNet2 += net * net
	s.Values = append(s.Values, net)
	s.AllNet += net

	if s.Outcomes == nil {
		s.Outcomes = make(map[string]OutcomeStats)
	}
	o := s.Outcomes[result.Outcome]
	o.Rounds++
	o.SumNet += net
	s.Outcomes[result.Outcome] = o

	if result.Doubled {
		s.Doubled++
		s.DoubledNet += net
	}
	if result.Split {
		s.Splits++
		s.SplitNet += net
	}
	if result.Busted {
		s.Busts++
	}
}

// Merge folds other into s. Workers collect their own statistics and merge
// them when done.
func (s *Statistics) Merge(other *Statistics) {
	if other == nil {
		return
	}
	s.Rounds += other.Rounds
	s.SumNet += other.SumNet
	s.SumNet2 += other.SumNet2
	s.Values = append(s.Values, other.Values...)
	s.AllNet += other.AllNet
	s.Doubled += other.Doubled
	s.DoubledNet += other.DoubledNet
	s.Splits += other.Splits
	s.SplitNet += other.SplitNet
	s.Busts += other.Busts

	if len(other.Outcomes) > 0 && s.Outcomes == nil {
		s.Outcomes = make(map[string]OutcomeStats)
	}
	for name, o := range other.Outcomes {
		mine := s.Outcomes[name]
		mine.Rounds += o.Rounds
		mine.SumNet += o.SumNet
		s.Outcomes[name] = mine
	}
}

// Rate returns the share of rounds that ended with outcome
func (s *Statistics) Rate(outcome string) float64 {
	if s.Rounds == 0 {
		return 0
	}
	return float64(s.Outcomes[outcome].Rounds) / float64(s.Rounds)
}

// Median returns the median value of all results
func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the value at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// IsLedgerBalanced checks the outcome buckets add up to the total
func (s *Statistics) IsLedgerBalanced() bool {
	var sum float64
	for _, o := range s.Outcomes {
		sum += o.SumNet
	}
	return math.Abs(s.AllNet-sum) <= 1e-6
}

// Validate performs consistency checks on the collected data
func (s *Statistics) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: AllNet=%.6f does not match outcome buckets", s.AllNet)
	}
	if s.Rounds <= 0 {
		return fmt.Errorf("invalid rounds count: %d", s.Rounds)
	}
	if len(s.Values) != s.Rounds {
		return fmt.Errorf("values array length (%d) does not match rounds count (%d)",
			len(s.Values), s.Rounds)
	}

	total := 0
	for name, o := range s.Outcomes {
		known := false
		for _, want := range outcomes {
			if name == want {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown outcome %q", name)
		}
		total += o.Rounds
	}
	if total != s.Rounds {
		return fmt.Errorf("outcome rounds total (%d) does not match rounds (%d)", total, s.Rounds)
	}
	if s.Busts > s.Outcomes[OutcomeLost].Rounds {
		return fmt.Errorf("busts (%d) exceed losses (%d)", s.Busts, s.Outcomes[OutcomeLost].Rounds)
	}
	return nil
}
