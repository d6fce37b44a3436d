package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/lox/vrfjack/internal/fileutil"
)

const roundExt = ".toml"

// FileSink writes one TOML document per round under
// <base>/<account>/<round>.toml
type FileSink struct {
	baseDir string
}

// NewFileSink creates a sink rooted at baseDir
func NewFileSink(baseDir string) (*FileSink, error) {
	if baseDir == "" {
		baseDir = "rounds"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create %s: %w", baseDir, err)
	}
	return &FileSink{baseDir: baseDir}, nil
}

// Dir returns the sink's base directory
func (s *FileSink) Dir() string {
	return s.baseDir
}

// Path returns where a round is stored
func (s *FileSink) Path(account, round string) string {
	return filepath.Join(s.baseDir, safeName(account), safeName(round)+roundExt)
}

// WriteRounds implements Sink
func (s *FileSink) WriteRounds(ctx context.Context, rounds []*Round) error {
	for _, round := range rounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := EncodeRound(round)
		if err != nil {
			return err
		}
		if err := fileutil.WriteFileAtomic(s.Path(round.Account, round.ID), data, 0o644); err != nil {
			return fmt.Errorf("history: write round %s: %w", round.ID, err)
		}
	}
	return nil
}

// Close implements Sink
func (s *FileSink) Close() error {
	return nil
}

// EncodeRound renders a round as TOML
func EncodeRound(round *Round) ([]byte, error) {
	if round == nil {
		return nil, fmt.Errorf("history: round is nil")
	}
	var buf strings.Builder
	enc := toml.NewEncoder(&buf)
	enc.Indent = "\t"
	if err := enc.Encode(round); err != nil {
		return nil, fmt.Errorf("history: encode round %s: %w", round.ID, err)
	}
	return []byte(buf.String()), nil
}

// LoadRound reads a round document
func LoadRound(path string) (*Round, error) {
	var round Round
	if _, err := toml.DecodeFile(path, &round); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", path, err)
	}
	return &round, nil
}

// LoadRounds reads every round stored for account, ordered by round id.
// Round ids sort by creation time.
func LoadRounds(baseDir, account string) ([]*Round, error) {
	dir := filepath.Join(baseDir, safeName(account))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != roundExt {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	rounds := make([]*Round, 0, len(names))
	for _, name := range names {
		round, err := LoadRound(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	return rounds, nil
}

// safeName keeps path separators and dot segments out of file names
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator || r == 0 {
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_" + s
	}
	return s
}
