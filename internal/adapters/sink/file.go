package sink

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// File names written under the results directory.
const (
	OutcomeFeedFile = "outcomes_public.jsonl"
	TournamentFile  = "tournament.json"
)

// leaderboardHeader is the CSV header of stage leaderboards.
var leaderboardHeader = []string{
	"rank", "team_id", "arena_id", "total_utility", "max_single_item_utility",
	"total_items_won", "games_played", "total_spent", "total_valuation_won", "games_won",
}

// archiveMode keeps timestamps at full precision in archives.
var archiveMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// File writes results under a directory:
//
//	outcomes_public.jsonl                      public feed, one outcome per line
//	stage{s}/arena_{a}/game_{n}_detailed.json  full record, staff only
//	stage{s}/arena_{a}/game_{n}_public.json    public projection
//	stage{s}/arena_{a}/game_{n}.cbor           full record archive
//	stage{s}/arena_{a}/game_{n}.cbor.sha256    archive digest
//	stage{s}_complete.json                     stage result
//	stage{s}_leaderboard.csv                   stage leaderboard
type File struct {
	dir    string
	logger logger.Logger

	feedMu sync.Mutex
}

var _ Sink = (*File)(nil)

// NewFile creates a File sink rooted at dir, creating it if needed.
func NewFile(dir string, log logger.Logger) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	if log == nil {
		log = logger.Get().Named("sink")
	}
	return &File{dir: dir, logger: log}, nil
}

// Dir returns the results directory.
func (f *File) Dir() string { return f.dir }

func (f *File) PublishOutcome(_ context.Context, o model.AuctionOutcome) error {
	b, err := json.Marshal(o.Public())
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	f.feedMu.Lock()
	defer f.feedMu.Unlock()
	fh, err := os.OpenFile(filepath.Join(f.dir, OutcomeFeedFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // results are world-readable
	if err != nil {
		return fmt.Errorf("open outcome feed: %w", err)
	}
	if _, err := fh.Write(append(b, '\n')); err != nil {
		_ = fh.Close()
		return fmt.Errorf("append outcome: %w", err)
	}
	return fh.Close()
}

// GamePaths returns the detailed, public and archive paths of a game.
func (f *File) GamePaths(g model.GameResult) (detailed, public, archive string) {
	base := filepath.Join(f.dir, "stage"+strconv.Itoa(g.Stage), "arena_"+g.ArenaID, "game_"+strconv.Itoa(g.GameNumber))
	return base + "_detailed.json", base + "_public.json", base + ".cbor"
}

func (f *File) PublishGame(ctx context.Context, g model.GameResult) error {
	detailed, public, archive := f.GamePaths(g)
	if err := os.MkdirAll(filepath.Dir(detailed), 0o755); err != nil {
		return fmt.Errorf("create game dir: %w", err)
	}
	if err := writeJSON(detailed, g); err != nil {
		return err
	}
	if err := writeJSON(public, g.Public()); err != nil {
		return err
	}

	b, err := archiveMode.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game archive: %w", err)
	}
	if err := writeAtomic(archive, b); err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:]) + "  " + filepath.Base(archive) + "\n"
	if err := writeAtomic(archive+".sha256", []byte(digest)); err != nil {
		return err
	}

	f.logger.Debug(ctx, "game written", logger.String("game", g.GameID), logger.String("path", detailed))
	return nil
}

func (f *File) PublishStandings(ctx context.Context, st model.StageResult) error {
	prefix := filepath.Join(f.dir, "stage"+strconv.Itoa(st.Stage))
	if err := writeJSON(prefix+"_complete.json", st); err != nil {
		return err
	}
	if err := writeLeaderboardCSV(prefix+"_leaderboard.csv", st.Leaderboard); err != nil {
		return err
	}
	f.logger.Info(ctx, "stage results written", logger.Int("stage", st.Stage), logger.String("dir", f.dir))
	return nil
}

// WriteTournament writes the final tournament summary.
func (f *File) WriteTournament(res model.TournamentResult) error {
	return writeJSON(filepath.Join(f.dir, TournamentFile), res)
}

// WriteText writes a text artefact such as the final report.
func (f *File) WriteText(name, text string) error {
	return writeAtomic(filepath.Join(f.dir, name), []byte(text))
}

// ReadArchive decodes a game archive after checking its digest.
func ReadArchive(path string) (model.GameResult, error) {
	b, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return model.GameResult{}, fmt.Errorf("read archive: %w", err)
	}
	want, err := os.ReadFile(path + ".sha256") //nolint:gosec // operator-supplied path
	if err != nil {
		return model.GameResult{}, fmt.Errorf("read archive digest: %w", err)
	}
	sum := sha256.Sum256(b)
	if got := hex.EncodeToString(sum[:]); len(want) < len(got) || string(want[:len(got)]) != got {
		return model.GameResult{}, fmt.Errorf("%w: %s", ErrDigestMismatch, path)
	}
	var g model.GameResult
	if err := cbor.Unmarshal(b, &g); err != nil {
		return model.GameResult{}, fmt.Errorf("decode archive: %w", err)
	}
	return g, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, append(b, '\n'))
}

func writeLeaderboardCSV(path string, rows []model.StageStanding) error {
	tmp := path + ".tmp"
	fh, err := os.Create(tmp) //nolint:gosec // results path
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(fh)
	_ = w.Write(leaderboardHeader)
	for _, r := range rows {
		_ = w.Write([]string{
			strconv.Itoa(r.Rank),
			r.TeamID,
			r.ArenaID,
			formatMoney(r.CumulativeUtility),
			formatMoney(r.MaxSingleItemUtility),
			strconv.Itoa(r.ItemsWon),
			strconv.Itoa(r.GamesPlayed),
			formatMoney(r.TotalSpent),
			formatMoney(r.TotalValuationWon),
			strconv.Itoa(r.GamesWon),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = fh.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil { //nolint:gosec // results are world-readable
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
