// Package loader builds strategy handles from team sources.
//
// A source is either "builtin:<name>[:<param>]" for the reference
// strategies, or "exec:<command> [args...]" for a strategy running in its
// own process and speaking the JSON line protocol.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/strategy"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// Source prefixes.
const (
	BuiltinPrefix = "builtin:"
	ExecPrefix    = "exec:"
)

// Loader implements strategy.Loader.
type Loader struct {
	logger logger.Logger
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{logger: logger.Get().Named("staff")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds the handle for team. Any error makes the team forfeit the game.
func (l *Loader) Load(ctx context.Context, team model.Team, setup strategy.Init) (strategy.Handle, error) {
	switch {
	case strings.HasPrefix(team.Source, BuiltinPrefix):
		return newBuiltin(strings.TrimPrefix(team.Source, BuiltinPrefix), setup)
	case strings.HasPrefix(team.Source, ExecPrefix):
		argv := strings.Fields(strings.TrimPrefix(team.Source, ExecPrefix))
		var dir string
		if len(argv) > 0 && filepath.IsAbs(argv[0]) {
			dir = filepath.Dir(argv[0])
		}
		return startProcess(ctx, argv, dir, setup, l.logger)
	default:
		return nil, fmt.Errorf("%w: team %s source %q", strategy.ErrUnknownStrategy, team.ID, team.Source)
	}
}

var _ strategy.Loader = (*Loader)(nil)
