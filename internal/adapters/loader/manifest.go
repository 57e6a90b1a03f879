package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// Files looked for in a team directory.
const (
	ManifestFile  = "team.yaml"
	DefaultBinary = "bidder"
)

// Manifest is the team.yaml of a team directory.
//
//	team_id: alpha
//	team_name: Team Alpha
//	registered_at: 2025-01-10T12:00:00Z
//	strategy: truthful          # builtin, or
//	command: ./bidder --fast    # a subprocess, relative to the team dir
type Manifest struct {
	TeamID       string `koanf:"team_id"`
	TeamName     string `koanf:"team_name"`
	RegisteredAt string `koanf:"registered_at"`
	Strategy     string `koanf:"strategy"`
	Command      string `koanf:"command"`
}

// LoadTeam reads one team directory. Without a manifest the directory must
// hold an executable named bidder. The team id defaults to the directory
// name and the registration time to the directory's modification time.
func LoadTeam(dir string) (model.Team, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return model.Team{}, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	if !info.IsDir() {
		return model.Team{}, fmt.Errorf("%w: %s is not a directory", ErrManifest, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return model.Team{}, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	var m Manifest
	path := filepath.Join(abs, ManifestFile)
	if _, err := os.Stat(path); err == nil {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return model.Team{}, fmt.Errorf("%w: %s: %w", ErrManifest, path, err)
		}
		if err := k.UnmarshalWithConf("", &m, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return model.Team{}, fmt.Errorf("%w: %s: %w", ErrManifest, path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return model.Team{}, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	team := model.Team{
		ID:           m.TeamID,
		Name:         m.TeamName,
		RegisteredAt: info.ModTime().UTC(),
	}
	if team.ID == "" {
		team.ID = filepath.Base(abs)
	}
	if team.Name == "" {
		team.Name = team.ID
	}
	if m.RegisteredAt != "" {
		ts, err := time.Parse(time.RFC3339, m.RegisteredAt)
		if err != nil {
			return model.Team{}, fmt.Errorf("%w: registered_at %q: %w", ErrManifest, m.RegisteredAt, err)
		}
		team.RegisteredAt = ts.UTC()
	}

	switch {
	case m.Strategy != "" && m.Command != "":
		return model.Team{}, fmt.Errorf("%w: %s sets both strategy and command", ErrManifest, team.ID)
	case m.Strategy != "":
		team.Source = BuiltinPrefix + strings.TrimPrefix(m.Strategy, BuiltinPrefix)
	case m.Command != "":
		argv := strings.Fields(m.Command)
		if len(argv) == 0 {
			return model.Team{}, fmt.Errorf("%w: %s has an empty command", ErrManifest, team.ID)
		}
		if !filepath.IsAbs(argv[0]) && strings.ContainsRune(argv[0], filepath.Separator) {
			argv[0] = filepath.Join(abs, argv[0])
		}
		team.Source = ExecPrefix + strings.Join(argv, " ")
	default:
		bin := filepath.Join(abs, DefaultBinary)
		st, err := os.Stat(bin)
		if err != nil || st.IsDir() || st.Mode()&0o111 == 0 {
			return model.Team{}, fmt.Errorf("%w: %s has no strategy, command or %s executable", ErrManifest, abs, DefaultBinary)
		}
		team.Source = ExecPrefix + bin
	}
	return team, nil
}

// Discover loads every team directory under root and returns the teams in
// registration order. Directories that are not valid teams are skipped
// with a warning.
func Discover(ctx context.Context, root string, log logger.Logger) ([]model.Team, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: teams dir: %w", ErrManifest, err)
	}

	var teams []model.Team
	seen := map[string]string{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		team, err := LoadTeam(dir)
		if err != nil {
			log.Warn(ctx, "skipping team directory", logger.String("dir", dir), logger.Error(err))
			continue
		}
		if prev, ok := seen[team.ID]; ok {
			log.Warn(ctx, "skipping duplicate team id",
				logger.String("team", team.ID),
				logger.String("dir", dir),
				logger.String("first", prev),
			)
			continue
		}
		seen[team.ID] = dir
		teams = append(teams, team)
		log.Info(ctx, "loaded team", logger.String("team", team.ID), logger.Any("registered_at", team.RegisteredAt))
	}

	SortByRegistration(teams)
	return teams, nil
}

// SortByRegistration orders teams by registration time, then id.
func SortByRegistration(teams []model.Team) {
	sort.SliceStable(teams, func(i, j int) bool {
		if !teams[i].RegisteredAt.Equal(teams[j].RegisteredAt) {
			return teams[i].RegisteredAt.Before(teams[j].RegisteredAt)
		}
		return teams[i].ID < teams[j].ID
	})
}
