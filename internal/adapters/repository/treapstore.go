package repository

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/ranking"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Each stage has its own treap ordered by ranking.Less, so "less" means
// ranks earlier and an in-order traversal yields the leaderboard from best
// to worst. The chain ends on team id, so keys are unique and a team's
// rank is its in-order position.

// Snapshot is an immutable view of the top of every stage.
type Snapshot struct {
	Top     map[int][]model.StageStanding
	Counts  map[int]int
	BuiltAt time.Time
}

type node struct {
	s     model.StageStanding
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// priority hashes the team id; stable across runs and well spread.
func priority(teamID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(teamID))
	return h.Sum64()
}

func insert(n *node, s model.StageStanding) *node {
	if n == nil {
		return &node{s: s, prio: priority(s.TeamID), size: 1}
	}
	if ranking.Less(&s, &n.s) {
		n.left = insert(n.left, s)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, s)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, s *model.StageStanding) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.s.TeamID == s.TeamID:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, s)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, s)
		}
	case ranking.Less(s, &n.s):
		n.left = deleteNode(n.left, s)
	default:
		n.right = deleteNode(n.right, s)
	}
	fix(n)
	return n
}

// position returns the 0-based in-order index of s, or -1.
func position(n *node, s *model.StageStanding) int {
	pos := 0
	for n != nil {
		switch {
		case n.s.TeamID == s.TeamID:
			return pos + nsize(n.left)
		case ranking.Less(s, &n.s):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectTopN appends up to limit standings in rank order.
func collectTopN(n *node, limit int, out *[]model.StageStanding) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		s := n.s
		s.Rank = len(*out) + 1
		*out = append(*out, s)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

type board struct {
	root *node
	byID map[string]model.StageStanding
}

type TreapStore struct {
	mu               sync.RWMutex
	boards           map[int]*board
	snapshotInterval time.Duration
	topCacheSize     int

	snapshot atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		boards:           make(map[int]*board),
		snapshotInterval: 1 * time.Second,
		topCacheSize:     100,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.publishSnapshot()
	s.stopChan = make(chan struct{})
	s.startPeriodicSnapshots(ctx)
	return s
}

func (s *TreapStore) startPeriodicSnapshots(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.snapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.publishSnapshot()
			}
		}
	}()
}

// publishSnapshot rebuilds the top cache of every stage and refreshes the
// standings gauge.
func (s *TreapStore) publishSnapshot() {
	s.mu.RLock()
	snap := &Snapshot{
		Top:     make(map[int][]model.StageStanding, len(s.boards)),
		Counts:  make(map[int]int, len(s.boards)),
		BuiltAt: time.Now(),
	}
	total := 0
	for stage, b := range s.boards {
		top := make([]model.StageStanding, 0, min(s.topCacheSize, len(b.byID)))
		collectTopN(b.root, s.topCacheSize, &top)
		snap.Top[stage] = top
		snap.Counts[stage] = len(b.byID)
		total += len(b.byID)
	}
	s.mu.RUnlock()

	s.snapshot.Store(snap)
	metrics.UpdateStandingsRecorded(total)
}

// Snapshot returns the latest published snapshot.
func (s *TreapStore) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Close gracefully shuts down the periodic snapshot goroutine.
func (s *TreapStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// Upsert implements Store.Upsert with O(log n) expected time.
func (s *TreapStore) Upsert(_ context.Context, standing model.StageStanding) error {
	if standing.TeamID == "" {
		metrics.RecordErrorByComponent("repository", "invalid_standing")
		return ErrInvalidStanding
	}
	standing.Rank = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[standing.Stage]
	if !ok {
		b = &board{byID: make(map[string]model.StageStanding)}
		s.boards[standing.Stage] = b
	}
	if old, ok := b.byID[standing.TeamID]; ok {
		b.root = deleteNode(b.root, &old)
	}
	b.byID[standing.TeamID] = standing
	b.root = insert(b.root, standing)
	return nil
}

// Rank returns the standing and rank of a team in O(log n).
func (s *TreapStore) Rank(_ context.Context, stage int, teamID string) (model.StageStanding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boards[stage]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.StageStanding{}, ErrNotFound
	}
	st, ok := b.byID[teamID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.StageStanding{}, ErrNotFound
	}
	st.Rank = position(b.root, &st) + 1
	return st, nil
}

// TopN returns the top n standings of a stage.
func (s *TreapStore) TopN(_ context.Context, stage int, n int) ([]model.StageStanding, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boards[stage]
	if !ok {
		return []model.StageStanding{}, nil
	}
	out := make([]model.StageStanding, 0, min(n, len(b.byID)))
	collectTopN(b.root, n, &out)
	return out, nil
}

// Count returns the number of teams with a standing in the stage.
func (s *TreapStore) Count(_ context.Context, stage int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.boards[stage]; ok {
		return len(b.byID)
	}
	return 0
}

// Stages returns the stages that have standings, ascending.
func (s *TreapStore) Stages(_ context.Context) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.boards))
	for stage := range s.boards {
		out = append(out, stage)
	}
	sort.Ints(out)
	return out
}

var _ Store = (*TreapStore)(nil)
