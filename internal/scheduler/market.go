package scheduler

import (
	"fmt"
	"time"

	"sigflow/internal/config"
)

// Session represents a recurring weekday market session, e.g.
// 09:30-16:00 America/New_York.
type Session struct {
	openMinutes  int
	closeMinutes int
	loc          *time.Location
}

// NewSession builds a session from configuration.
func NewSession(cfg config.MarketSessionConfig) (*Session, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load market timezone: %w", err)
	}
	open, err := parseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("invalid market open: %w", err)
	}
	closeM, err := parseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid market close: %w", err)
	}
	if closeM <= open {
		return nil, fmt.Errorf("market close %s must be after open %s", cfg.Close, cfg.Open)
	}
	return &Session{openMinutes: open, closeMinutes: closeM, loc: loc}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the session's timezone.
func (s *Session) Location() *time.Location {
	return s.loc
}

// Contains reports whether t falls inside the session, weekdays only.
func (s *Session) Contains(t time.Time) bool {
	lt := t.In(s.loc)
	if isWeekend(lt.Weekday()) {
		return false
	}
	m := lt.Hour()*60 + lt.Minute()
	return m >= s.openMinutes && m < s.closeMinutes
}

// CloseAt returns the session close on t's calendar day.
func (s *Session) CloseAt(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(),
		s.closeMinutes/60, s.closeMinutes%60, 0, 0, s.loc)
}

// NextOpen returns the first session open strictly after t.
func (s *Session) NextOpen(t time.Time) time.Time {
	lt := t.In(s.loc)
	for i := 0; i <= 7; i++ {
		day := lt.AddDate(0, 0, i)
		open := time.Date(day.Year(), day.Month(), day.Day(),
			s.openMinutes/60, s.openMinutes%60, 0, 0, s.loc)
		if isWeekend(open.Weekday()) {
			continue
		}
		if open.After(t) {
			return open
		}
	}
	return lt
}

// NextBoundary returns the first candle-close boundary of the given
// timeframe strictly after t. Sub-hour and hour candles close on
// modulo marks from the top of the hour, multi-hour candles on hours
// divisible by their span counted from midnight, and daily candles
// close with the session.
func (s *Session) NextBoundary(t time.Time, tf time.Duration) time.Time {
	lt := t.In(s.loc)
	switch {
	case tf <= time.Hour:
		b := time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, s.loc)
		for !b.After(lt) {
			b = b.Add(tf)
		}
		return b
	case tf < 24*time.Hour:
		b := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
		for !b.After(lt) {
			b = b.Add(tf)
		}
		return b
	default:
		c := s.CloseAt(lt)
		if c.After(lt) && !isWeekend(c.Weekday()) {
			return c
		}
		return s.CloseAt(s.NextOpen(lt))
	}
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
