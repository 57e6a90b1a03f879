package auction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/money"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/strategy"
	"github.com/nitayalon/AGT-Bidding-competition/internal/sandbox"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/metrics"
)

// OperationProduceBid labels bid calls in metrics and logs.
const OperationProduceBid = "produce_bid"

// Participant is one team as seen by a round.
type Participant struct {
	TeamID string
	Handle strategy.Handle
	Guard  *sandbox.Guard
	// Budget is the team's remaining budget from the game ledger.
	Budget float64
}

// Round runs sealed-bid rounds: it collects bids, coerces them and resolves.
type Round struct {
	sandbox    *sandbox.Sandbox
	bidTimeout time.Duration
	places     int32
	logger     logger.Logger
	now        func() time.Time
}

// NewRound creates a Round that asks for bids through sb.
func NewRound(sb *sandbox.Sandbox, opts ...Option) *Round {
	r := &Round{
		sandbox:    sb,
		bidTimeout: 2 * time.Second,
		places:     money.DefaultPlaces,
		logger:     logger.Get().Named("staff"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run auctions one item among the participants. Every participant is asked
// concurrently; the round completes once every call has returned, timed out
// or faulted. Run never fails: misbehaving strategies bid 0.
func (r *Round) Run(ctx context.Context, gameID string, round int, itemID string, parts []Participant, rnd RandSource) model.AuctionOutcome {
	bids := make([]model.Bid, len(parts))
	diags := make([][]model.Diagnostic, len(parts))

	var wg sync.WaitGroup
	for i := range parts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := parts[i]
			out := r.sandbox.Invoke(ctx, p.Guard, OperationProduceBid, r.bidTimeout, func(c context.Context) (float64, error) {
				return p.Handle.ProduceBid(c, itemID)
			})
			bids[i], diags[i] = Coerce(p.TeamID, out, p.Budget, r.places)
		}(i)
	}
	wg.Wait()

	res := Resolve(bids, rnd)

	var all []model.Diagnostic
	for _, d := range diags {
		all = append(all, d...)
	}

	outcome := model.AuctionOutcome{
		GameID:      gameID,
		Round:       round,
		ItemID:      itemID,
		WinnerID:    res.WinnerID,
		Price:       res.Price,
		Bids:        bids,
		Diagnostics: all,
		Tied:        res.Tied,
		Timestamp:   r.now(),
	}

	result := "sold"
	switch {
	case !outcome.HasWinner():
		result = "unsold"
	case len(res.Tied) > 0:
		result = "tied"
	}
	metrics.RecordRound(result, res.Price)

	r.logger.Debug(ctx, "round bids",
		logger.String("game", gameID),
		logger.Int("round", round),
		logger.String("item", itemID),
		logger.Any("bids", bids),
		logger.Any("tied", res.Tied),
		logger.Int("diagnostics", len(all)),
	)
	return outcome
}

// Coerce turns a sandbox outcome into an effective bid.
//
// Timeouts and faults bid 0. Non-finite, negative and non-numeric values
// bid 0. Anything above the remaining budget is clamped to it. The result
// is rounded to places decimal places.
func Coerce(teamID string, out sandbox.Outcome, budget float64, places int32) (model.Bid, []model.Diagnostic) {
	bid := model.Bid{TeamID: teamID, Elapsed: out.Elapsed}

	switch out.Status {
	case sandbox.TimedOut:
		metrics.RecordBid("timeout")
		return bid, []model.Diagnostic{{TeamID: teamID, Kind: model.BidTimeout, Detail: causeText(out.Cause)}}
	case sandbox.Faulted:
		if errors.Is(out.Cause, strategy.ErrNonNumericBid) {
			metrics.RecordBid("invalid")
			return bid, []model.Diagnostic{{TeamID: teamID, Kind: model.InvalidBidValue, Detail: causeText(out.Cause)}}
		}
		metrics.RecordBid("fault")
		return bid, []model.Diagnostic{{TeamID: teamID, Kind: model.BidFault, Detail: causeText(out.Cause)}}
	}

	v := out.Value
	bid.Submitted = strconv.FormatFloat(v, 'g', -1, 64)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		metrics.RecordBid("invalid")
		return bid, []model.Diagnostic{{TeamID: teamID, Kind: model.InvalidBidValue, Detail: fmt.Sprintf("bid %s", bid.Submitted)}}
	}

	amount, capped := money.Clamp(v, budget, places)
	bid.Amount = amount
	if capped {
		metrics.RecordBid("capped")
		return bid, []model.Diagnostic{{
			TeamID: teamID,
			Kind:   model.BudgetCapApplied,
			Detail: fmt.Sprintf("bid %s capped to %s", bid.Submitted, strconv.FormatFloat(amount, 'f', -1, 64)),
		}}
	}
	if amount == 0 {
		metrics.RecordBid("zero")
	} else {
		metrics.RecordBid("accepted")
	}
	return bid, nil
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
