// Package planner decides which calendar-month window to request next.
package planner

import (
	"fmt"

	"wastewater/internal/core"
)

// Window is an inclusive range of calendar days.
type Window struct {
	Start core.Date
	End   core.Date
}

// Empty reports whether the window starts after it ends, which happens when
// the month following the last known record has not begun yet.
func (w Window) Empty() bool {
	return w.Start.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.ISO(), w.End.ISO())
}

// Next returns the window of the month following w, clipped to today.
func (w Window) Next(today core.Date) Window {
	return monthWindow(w.Start.AddMonths(1), today)
}

// ComputeNextWindow returns the window to fetch after last. Without prior
// data the window is the month starting at bootstrap. The end is clipped to
// today so no future-dated window is requested.
func ComputeNextWindow(last *core.Date, today, bootstrap core.Date) Window {
	if last == nil {
		return monthWindow(bootstrap.FirstOfMonth(), today)
	}
	return monthWindow(last.AddMonths(1), today)
}

func monthWindow(start, today core.Date) Window {
	// one day before the first of the following month
	end := start.AddMonths(1).AddDays(-1)
	if end.After(today) {
		end = today
	}
	return Window{Start: start, End: end}
}
