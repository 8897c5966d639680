package engine

import (
	"time"

	"github.com/RussellLuo/timingwheel"
)

// presence schedules offline-grace checks on a timing wheel. Checks are
// fire-and-verify: nothing is cancelled on reconnect, the check itself asks
// the player registry whether the identity came back. Scheduling the same
// identity twice is harmless for the same reason.
type presence struct {
	tw    *timingwheel.TimingWheel
	grace time.Duration
	check func(playerID string)
}

func newPresence(grace time.Duration, check func(playerID string)) *presence {
	return &presence{
		tw:    timingwheel.NewTimingWheel(100*time.Millisecond, 600),
		grace: grace,
		check: check,
	}
}

func (p *presence) start() { p.tw.Start() }
func (p *presence) stop()  { p.tw.Stop() }

func (p *presence) schedule(playerID string) {
	p.tw.AfterFunc(p.grace, func() { p.check(playerID) })
}
