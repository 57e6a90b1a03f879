package report

// Option configures a Report.
type Option func(*Report)

// WithTop sets how many leaderboard rows are printed per stage.
func WithTop(n int) Option {
	return func(r *Report) {
		if n > 0 {
			r.top = n
		}
	}
}

// WithTitle overrides the report heading.
func WithTitle(title string) Option {
	return func(r *Report) {
		if title != "" {
			r.title = title
		}
	}
}
