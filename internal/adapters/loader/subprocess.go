package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/strategy"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// Message types of the line protocol spoken with strategy processes.
//
// Every request is one JSON object per line on the child's stdin and
// carries a sequence number; the child answers with one JSON object per
// line on stdout echoing it. Replies to requests the caller already gave
// up on are dropped by sequence number.
const (
	msgInit    = "init"
	msgBid     = "bid"
	msgObserve = "observe"
	msgClose   = "close"
)

type request struct {
	Seq       uint64             `json:"seq"`
	Type      string             `json:"type"`
	TeamID    string             `json:"team_id,omitempty"`
	Valuation map[string]float64 `json:"valuation,omitempty"`
	Budget    float64            `json:"budget,omitempty"`
	Items     []string           `json:"items,omitempty"`
	ItemID    string             `json:"item_id,omitempty"`
	WinnerID  string             `json:"winner_id,omitempty"`
	Price     float64            `json:"price,omitempty"`
}

type reply struct {
	Seq   uint64          `json:"seq"`
	Bid   json.RawMessage `json:"bid,omitempty"`
	Error string          `json:"error,omitempty"`
}

// process is a strategy running in a child process for one game.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	logger logger.Logger

	mu     sync.Mutex
	seq    uint64
	closed bool
	done   chan struct{}
}

// startProcess launches argv and performs the init exchange.
func startProcess(ctx context.Context, argv []string, dir string, setup strategy.Init, log logger.Logger) (*process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", strategy.ErrUnknownStrategy)
	}
	// The process lives for the whole game, not just this call; it is
	// killed in Close.
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // operator-supplied team command
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, fmt.Errorf("failed to start strategy %q: %w", argv[0], err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte, 16),
		logger: log,
		done:   make(chan struct{}),
	}
	go p.readLines(stdout)
	go p.drainStderr(stderr, setup.TeamID)

	if _, err := p.call(ctx, request{
		Type:      msgInit,
		TeamID:    setup.TeamID,
		Valuation: setup.Valuation,
		Budget:    setup.Budget,
		Items:     setup.Items,
	}); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *process) readLines(r io.Reader) {
	defer close(p.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		select {
		case p.lines <- line:
		case <-p.done:
			return
		}
	}
}

func (p *process) drainStderr(r io.Reader, teamID string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.logger.Debug(context.Background(), "strategy stderr",
			logger.String("team", teamID),
			logger.String("line", sc.Text()),
		)
	}
}

// call sends req and waits for the reply carrying the same sequence number.
func (p *process) call(ctx context.Context, req request) (reply, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return reply{}, strategy.ErrClosed
	}
	p.seq++
	req.Seq = p.seq
	b, err := json.Marshal(req)
	if err == nil {
		_, err = p.stdin.Write(append(b, '\n'))
	}
	p.mu.Unlock()
	if err != nil {
		return reply{}, fmt.Errorf("failed to write %s request: %w", req.Type, err)
	}

	for {
		select {
		case <-ctx.Done():
			return reply{}, ctx.Err()
		case line, ok := <-p.lines:
			if !ok {
				return reply{}, errors.New("strategy process exited")
			}
			var rep reply
			if err := json.Unmarshal(line, &rep); err != nil {
				return reply{}, fmt.Errorf("malformed reply to %s: %w", req.Type, err)
			}
			if rep.Seq < req.Seq {
				continue
			}
			if rep.Seq > req.Seq {
				return reply{}, fmt.Errorf("reply out of order: got seq %d, want %d", rep.Seq, req.Seq)
			}
			if rep.Error != "" {
				return rep, fmt.Errorf("strategy error: %s", rep.Error)
			}
			return rep, nil
		}
	}
}

func (p *process) ProduceBid(ctx context.Context, itemID string) (float64, error) {
	rep, err := p.call(ctx, request{Type: msgBid, ItemID: itemID})
	if err != nil {
		return 0, err
	}
	return parseBid(rep.Bid)
}

func (p *process) ObserveOutcome(ctx context.Context, itemID, winnerID string, price float64) error {
	_, err := p.call(ctx, request{Type: msgObserve, ItemID: itemID, WinnerID: winnerID, Price: price})
	return err
}

// Close asks the child to exit and kills it regardless.
func (p *process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if b, err := json.Marshal(request{Seq: p.seq + 1, Type: msgClose}); err == nil {
		_, _ = p.stdin.Write(append(b, '\n'))
	}
	_ = p.stdin.Close()
	close(p.done)
	p.mu.Unlock()

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}

// parseBid accepts a JSON number or a numeric string. "NaN" and "Inf"
// strings parse and are left for bid coercion to reject.
func parseBid(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing bid", strategy.ErrNonNumericBid)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, nil
		}
	}
	return math.NaN(), fmt.Errorf("%w: %s", strategy.ErrNonNumericBid, string(raw))
}
