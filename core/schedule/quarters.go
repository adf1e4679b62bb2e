package schedule

import "time"

// quarterDates are the month/day pairs that close each quarter of the
// production emission calendar.
var quarterDates = [4]struct {
	month time.Month
	day   int
}{
	{time.March, 25},
	{time.June, 24},
	{time.September, 29},
	{time.December, 25},
}

// QuarterlyBoundaries builds the production boundary list: the period opens on
// December 25th of startYear at 00:00 UTC and every following year contributes
// four boundaries (Mar 25, Jun 24, Sep 29, Dec 25) through endYear inclusive.
// The 2024..2044 range yields 81 boundaries, i.e. 80 quarters.
func QuarterlyBoundaries(startYear, endYear int) []uint64 {
	out := make([]uint64, 0, 1+4*(endYear-startYear))
	initial := time.Date(startYear, time.December, 25, 0, 0, 0, 0, time.UTC)
	out = append(out, uint64(initial.Unix()))
	for year := startYear + 1; year <= endYear; year++ {
		for _, q := range quarterDates {
			dt := time.Date(year, q.month, q.day, 0, 0, 0, 0, time.UTC)
			out = append(out, uint64(dt.Unix()))
		}
	}
	return out
}
