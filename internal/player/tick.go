package player

import (
	"time"

	"go.uber.org/zap"

	"github.com/kmantle/smfdeck/internal/smf"
)

// Tick advances the scheduler and drains due events. It is the only method
// the audio context calls; it never blocks beyond the sink's Write calls
// and yields after at most tickDrainBudget of wall-clock work.
func (p *Player) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickLocked()
}

func (p *Player) tickLocked() {
	if p.state != StatePlaying {
		return
	}
	if p.microsPerTick == 0 {
		return
	}

	now := p.nowMicros()

	if p.clockEnabled {
		bpm := p.currentBPMLocked()
		if bpm == 0 {
			bpm = 120
		}
		microsPerClock := int64(60000000/bpm) / ticksPerQuarterClock
		if now-p.lastClockMicros >= microsPerClock {
			p.logClockErr(p.sink.Clock())
			p.lastClockMicros = now
		}
	}

	elapsed := now - p.lastTickWall
	if elapsed > 0 {
		deltaTicks := uint64(elapsed) / p.microsPerTick
		if deltaTicks > 0 {
			p.ticksElapsed += uint32(deltaTicks)
			p.lastTickWall += int64(deltaTicks) * int64(p.microsPerTick)
		}
	}

	p.drainDueEventsLocked()
}

// drainDueEventsLocked emits every buffered event with absTick <=
// ticksElapsed, subject to the cooperative time budget, per §4.2 step 5.
func (p *Player) drainDueEventsLocked() {
	budgetStart := time.Now()
	for {
		if p.state != StatePlaying {
			return
		}
		tick, ok := p.parser.PeekAbsTick()
		if !ok {
			p.reachedEnd = true
			p.state = StateStopped
			// The wall-clock advance can overshoot the last event; the
			// position at end of file is the file's length.
			if p.lengthTicks > 0 {
				p.ticksElapsed = p.lengthTicks
			}
			if p.clockEnabled {
				p.logClockErr(p.sink.Stop())
			}
			p.silenceAllLocked()
			return
		}
		if tick > p.ticksElapsed {
			return
		}
		if time.Since(budgetStart) > tickDrainBudget {
			return
		}

		ev, ok := p.parser.ReadNextEvent()
		if !ok {
			continue
		}
		if ev.Kind == smf.KindMeta {
			if ev.IsTempoMeta() {
				p.retargetTempoPercentLocked()
				p.calculateMicrosPerTickLocked()
			}
			continue
		}
		if err := p.emit(ev); err != nil {
			p.log.Warn("player: emit failed", zap.Error(err))
		}
	}
}
