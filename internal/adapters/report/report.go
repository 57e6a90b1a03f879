// Package report renders tournament results as a text report.
//
// Styling goes through a lipgloss renderer bound to the destination
// writer, so a terminal gets colour while files and pipes get plain text.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

const (
	defaultTop   = 10
	defaultTitle = "AGT Bidding Competition"
)

// Report renders results for one destination.
type Report struct {
	top   int
	title string

	heading lipgloss.Style
	section lipgloss.Style
	header  lipgloss.Style
	accent  lipgloss.Style
	muted   lipgloss.Style
	cell    lipgloss.Style
}

// New creates a Report whose styles are resolved against out.
func New(out io.Writer, opts ...Option) *Report {
	if out == nil {
		out = io.Discard
	}
	re := lipgloss.NewRenderer(out)
	r := &Report{
		top:     defaultTop,
		title:   defaultTitle,
		heading: re.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA")),
		section: re.NewStyle().Bold(true),
		header:  re.NewStyle().Bold(true).Foreground(lipgloss.Color("#9CA3AF")),
		accent:  re.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981")),
		muted:   re.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		cell:    re.NewStyle(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tournament renders the final report of a run.
func (r *Report) Tournament(res model.TournamentResult) string {
	var b strings.Builder
	b.WriteString(r.heading.Render(r.title+" - Final Report") + "\n")
	b.WriteString(r.muted.Render(fmt.Sprintf("run %s  seed %d", res.RunID, res.Seed)) + "\n\n")

	champion, runnerUp := res.Champion, res.RunnerUp
	if champion == "" {
		champion = "-"
	}
	if runnerUp == "" {
		runnerUp = "-"
	}
	b.WriteString("Champion:  " + r.accent.Render(champion) + "\n")
	b.WriteString("Runner-up: " + r.cell.Render(runnerUp) + "\n")

	for _, st := range []*model.StageResult{res.Stage1, res.Stage2} {
		if st == nil {
			continue
		}
		b.WriteString("\n")
		b.WriteString(r.Stage(*st))
	}
	return b.String()
}

// Stage renders arena winners, the advancing teams and the top of the
// stage leaderboard.
func (r *Report) Stage(st model.StageResult) string { //nolint:gocritic // hugeParam: StageResult is read-only here
	var b strings.Builder
	b.WriteString(r.section.Render(fmt.Sprintf("Stage %d", st.Stage)) + "\n")

	if len(st.Arenas) > 0 {
		b.WriteString(r.muted.Render("Arena winners") + "\n")
		rows := make([][]string, 0, len(st.Arenas))
		for _, a := range st.Arenas {
			if len(a.Standings) == 0 {
				continue
			}
			w := a.Standings[0]
			rows = append(rows, []string{a.Arena.ID, w.TeamID, money(w.CumulativeUtility)})
		}
		b.WriteString(r.table([]string{"arena", "winner", "utility"}, []bool{false, false, true}, rows))
	}

	if len(st.Advanced) > 0 {
		ids := make([]string, len(st.Advanced))
		for i, t := range st.Advanced {
			ids[i] = t.ID
		}
		b.WriteString(r.muted.Render("Advanced") + " " + strings.Join(ids, ", ") + "\n")
	}

	n := min(r.top, len(st.Leaderboard))
	b.WriteString(r.muted.Render(fmt.Sprintf("Leaderboard (top %d of %d)", n, len(st.Leaderboard))) + "\n")
	rows := make([][]string, 0, n)
	for _, s := range st.Leaderboard[:n] {
		rows = append(rows, []string{
			strconv.Itoa(s.Rank),
			s.TeamID,
			s.ArenaID,
			money(s.CumulativeUtility),
			money(s.MaxSingleItemUtility),
			strconv.Itoa(s.ItemsWon),
			strconv.Itoa(s.GamesPlayed),
			money(s.TotalSpent),
			money(s.TotalValuationWon),
			strconv.Itoa(s.GamesWon),
		})
	}
	b.WriteString(r.table(
		[]string{"rank", "team", "arena", "utility", "best item", "items", "games", "spent", "value won", "games won"},
		[]bool{true, false, false, true, true, true, true, true, true, true},
		rows,
	))
	return b.String()
}

// table lays rows out in columns sized to their widest cell. right marks
// right-aligned columns.
func (r *Report) table(headers []string, right []bool, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, c := range row {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	line := func(style lipgloss.Style, cells []string) string {
		out := make([]string, len(cells))
		for i, c := range cells {
			align := lipgloss.Left
			if right[i] {
				align = lipgloss.Right
			}
			out[i] = style.Width(widths[i]).Align(align).Render(c)
		}
		return "  " + strings.TrimRight(strings.Join(out, "  "), " ") + "\n"
	}

	var b strings.Builder
	b.WriteString(line(r.header, headers))
	for _, row := range rows {
		b.WriteString(line(r.cell, row))
	}
	return b.String()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
