package market

import (
	"time"
)

// Market status reasons.
const (
	StatusMarketOpen = "market_open"
	StatusPreMarket  = "pre_market"
	StatusAfterHours = "after_hours"
	StatusWeekend    = "weekend"
	StatusHoliday    = "holiday"
)

// Status describes the NYSE trading session at one instant.
type Status struct {
	Time      time.Time
	IsOpen    bool
	Reason    string
	DayOfWeek string
	OpensAt   string
	ClosesAt  string
}

var easternLoc = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("market: load America/New_York: " + err.Error())
	}
	return loc
}

// Eastern converts an instant to exchange-local time.
func Eastern(t time.Time) time.Time {
	return t.In(easternLoc)
}

// NYSE full-day holidays, 2024–2026.
var nyseHolidays = map[string]bool{
	"2024-01-01": true, "2024-01-15": true, "2024-02-19": true, "2024-03-29": true,
	"2024-05-27": true, "2024-06-19": true, "2024-07-04": true, "2024-09-02": true,
	"2024-11-28": true, "2024-12-25": true,
	"2025-01-01": true, "2025-01-20": true, "2025-02-17": true, "2025-04-18": true,
	"2025-05-26": true, "2025-06-19": true, "2025-07-04": true, "2025-09-01": true,
	"2025-11-27": true, "2025-12-25": true,
	"2026-01-01": true, "2026-01-19": true, "2026-02-16": true, "2026-04-03": true,
	"2026-05-25": true, "2026-06-19": true, "2026-07-03": true, "2026-09-07": true,
	"2026-11-26": true, "2026-12-25": true,
}

// Sessions that close at 13:00 ET.
var nyseEarlyClose = map[string]bool{
	"2024-07-03": true, "2024-11-29": true, "2024-12-24": true,
	"2025-07-03": true, "2025-11-28": true, "2025-12-24": true,
	"2026-11-27": true, "2026-12-24": true,
}

// MarketStatus evaluates the NYSE session state for the given instant.
func MarketStatus(now time.Time) Status {
	et := Eastern(now)
	day := et.Format("2006-01-02")

	status := Status{
		Time:      et,
		DayOfWeek: et.Weekday().String(),
	}

	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		status.Reason = StatusWeekend
		return status
	}
	if nyseHolidays[day] {
		status.Reason = StatusHoliday
		return status
	}

	open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, easternLoc)
	closeHour := 16
	closesAt := "16:00 ET"
	if nyseEarlyClose[day] {
		closeHour = 13
		closesAt = "13:00 ET"
	}
	close := time.Date(et.Year(), et.Month(), et.Day(), closeHour, 0, 0, 0, easternLoc)

	switch {
	case et.Before(open):
		status.Reason = StatusPreMarket
		status.OpensAt = "09:30 ET"
	case et.After(close):
		status.Reason = StatusAfterHours
	default:
		status.IsOpen = true
		status.Reason = StatusMarketOpen
		status.ClosesAt = closesAt
	}
	return status
}
