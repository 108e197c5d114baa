package player

// ticksToMillisLocked converts a tick count to milliseconds using the
// current microsPerTick, returning 0 if tempo has not yet been calculated.
func (p *Player) ticksToMillisLocked(ticks uint32) uint32 {
	if p.microsPerTick == 0 {
		return 0
	}
	return uint32(uint64(ticks) * p.microsPerTick / 1000)
}

// millisToTicksLocked is the inverse of ticksToMillisLocked.
func (p *Player) millisToTicksLocked(ms uint32) uint32 {
	if p.microsPerTick == 0 {
		return 0
	}
	return uint32(uint64(ms) * 1000 / p.microsPerTick)
}

// CurrentTimeMs returns the current playback position in milliseconds,
// including fractional progress since the last tick while Playing.
func (p *Player) CurrentTimeMs() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.ticksToMillisLocked(p.ticksElapsed)
	if p.state != StatePlaying {
		return base
	}
	elapsed := p.nowMicros() - p.lastTickWall
	if elapsed < 0 {
		return base
	}
	return base + uint32(elapsed/1000)
}

// TotalTimeMs returns the loaded file's total duration in milliseconds.
func (p *Player) TotalTimeMs() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticksToMillisLocked(p.lengthTicks)
}

// FastForward advances playback by dMs milliseconds, discarding events
// along the way rather than sending them, per §4.2.
func (p *Player) FastForward(dMs uint32) {
	p.seekBy(dMs, false)
}

// Rewind moves playback backward by dMs milliseconds; internally this
// resets the parser to the start and fast-forwards silently to the target
// tick, since the parser has no backward-seek primitive of its own.
func (p *Player) Rewind(dMs uint32) {
	p.seekBy(dMs, true)
}

// Seek moves to an absolute position in milliseconds from the start of the
// file (reset + fast-forward, per §4.2).
func (p *Player) Seek(ms uint32) {
	p.mu.Lock()
	wasPlaying := p.state == StatePlaying
	if wasPlaying {
		p.pauseLocked()
	}
	p.silenceAllLocked()
	if err := p.parser.Reset(); err != nil {
		p.lastIOErr = err
		p.mu.Unlock()
		return
	}
	p.ticksElapsed = 0
	targetTicks := p.millisToTicksLocked(ms)
	p.mu.Unlock()
	p.sleep(silenceSettle)

	p.advanceSilentlyTo(targetTicks)

	if wasPlaying {
		_ = p.Play()
	}
}

func (p *Player) pauseLocked() {
	p.state = StatePaused
	if p.clockEnabled {
		p.logClockErr(p.sink.Stop())
	}
}

// seekBy implements FastForward (backward=false) and Rewind
// (backward=true): pause, silence, compute the target tick, discard events
// up to it, resume if previously playing.
func (p *Player) seekBy(dMs uint32, backward bool) {
	p.mu.Lock()
	wasPlaying := p.state == StatePlaying
	if wasPlaying {
		p.pauseLocked()
	}
	p.silenceAllLocked()

	deltaTicks := p.millisToTicksLocked(dMs)
	var targetTicks uint32
	if backward {
		if p.ticksElapsed > deltaTicks {
			targetTicks = p.ticksElapsed - deltaTicks
		} else {
			targetTicks = 0
		}
	} else {
		targetTicks = p.ticksElapsed + deltaTicks
		if targetTicks > p.lengthTicks {
			targetTicks = p.lengthTicks
		}
	}
	p.mu.Unlock()
	p.sleep(silenceSettle)

	if backward {
		p.mu.Lock()
		if err := p.parser.Reset(); err != nil {
			p.lastIOErr = err
			p.mu.Unlock()
			return
		}
		p.ticksElapsed = 0
		p.mu.Unlock()
	}

	p.advanceSilentlyTo(targetTicks)

	p.mu.Lock()
	p.silenceAllLocked()
	p.mu.Unlock()
	p.sleep(silenceSettle)

	if wasPlaying {
		_ = p.Play()
	}
}

// advanceSilentlyTo reads and discards events up to targetTicks without
// emitting them, freeing any sysex payloads as it goes. Bounded at
// maxSeekEvents as a corruption guard, re-acquiring the lock every
// iteration so a long seek never starves the audio context's Tick calls.
func (p *Player) advanceSilentlyTo(targetTicks uint32) {
	processed := 0
	for {
		p.mu.Lock()
		tick, ok := p.parser.PeekAbsTick()
		if !ok || tick > targetTicks || processed >= maxSeekEvents {
			p.ticksElapsed = targetTicks
			p.lastTickWall = p.nowMicros()
			p.mu.Unlock()
			return
		}
		_, _ = p.parser.ReadNextEvent()
		processed++
		p.mu.Unlock()
	}
}
