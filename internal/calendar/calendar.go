// Package calendar implements ports.ExchangeCalendar. Real deployments
// should consult each exchange's published trading calendar (holidays,
// special sessions); this reference implementation fixes IST trading hours
// (09:15-15:30) and treats every weekday as a trading day, which is enough
// to drive expiration sweeps correctly outside holiday edge cases.
package calendar

import (
	"time"

	"github.com/yourorg/tradingcore/internal/domain"
)

var ist = mustLoadIST()

func mustLoadIST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// Fixed is the reference ExchangeCalendar: identical hours across NSE, BSE,
// and MCX, no holiday table.
type Fixed struct{}

func New() *Fixed { return &Fixed{} }

func (*Fixed) IsTradingDay(date time.Time, _ domain.Exchange) bool {
	wd := date.In(ist).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (*Fixed) EndOfTradingDay(date time.Time, _ domain.Exchange) time.Time {
	d := date.In(ist)
	return time.Date(d.Year(), d.Month(), d.Day(), 15, 30, 0, 0, ist)
}
