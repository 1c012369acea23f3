package transport

import "orpheuscore/internal/telemetry"

// ProcessAudio is the audio-thread per-buffer step (spec §4.7): drain
// commands, render each active clip into its scratch channel, route
// through the matrix, then advance playback state. outputs is sized
// [num_outputs][frames]; frames is clamped to the buffer the controller
// was constructed for.
func (c *Controller) ProcessAudio(outputs [][]float32, frames int) {
	if frames > c.maxFrames {
		frames = c.maxFrames
	}

	c.drainCommands(frames)

	for i := range c.scratch {
		row := c.scratch[i][:frames]
		for f := range row {
			row[f] = 0
		}
	}

	c.activeMu.Lock()
	idx := 0
	for idx < len(c.active) {
		clip := &c.active[idx]
		meta, ok := c.metadataFor(clip.handle)
		if !ok {
			c.removeActiveLocked(idx)
			continue
		}
		c.renderClip(idx, clip, meta, frames)
		if c.advanceClip(clip, meta, frames) {
			c.removeActiveLocked(idx)
			continue
		}
		c.matrix.SetChannelGroup(idx, int(meta.Group))
		idx++
	}
	c.activeMu.Unlock()

	c.matrix.ProcessRouting(c.scratch, outputs, frames)

	c.currentSample.Add(int64(frames))
}

// renderClip reads up to the clip's remaining trimmed-region frames and
// writes the gain-composed mono-summed signal into its scratch channel
// (spec §4.7 step 3.a-3.c).
func (c *Controller) renderClip(slot int, clip *activeClip, meta *ClipMetadata, frames int) {
	remaining := meta.TrimOutSamples - clip.currentSample
	if remaining < 0 {
		remaining = 0
	}
	toRender := int64(frames)
	if toRender > remaining {
		toRender = remaining
	}
	if toRender <= 0 || clip.reader == nil || !clip.reader.IsOpen() {
		return
	}

	readPos := meta.TrimInSamples + clip.currentSample
	if err := clip.reader.Seek(readPos); err != nil {
		c.hub.LogStatus(telemetry.ComponentTransport, telemetry.StatusIoError, "seek failed: "+err.Error())
		return
	}

	channels := clip.channelCount
	if channels <= 0 {
		channels = 1
	}
	if channels > c.maxReadChannels {
		channels = c.maxReadChannels
	}
	dst := c.readBuf[:channels]
	for ch := range dst {
		dst[ch] = c.readBuf[ch][:toRender]
	}
	framesRead, err := clip.reader.ReadSamples(dst)
	if err != nil {
		c.hub.LogStatus(telemetry.ComponentTransport, telemetry.StatusIoError, "read failed: "+err.Error())
		c.enqueueEvent(EventBufferUnderrun, clip.handle)
		framesRead = 0
	}
	if int64(framesRead) < toRender {
		c.enqueueEvent(EventBufferUnderrun, clip.handle)
	}

	fadeInFrames := int64(meta.FadeInSeconds * c.sampleRateHz)
	fadeOutFrames := int64(meta.FadeOutSeconds * c.sampleRateHz)
	linearGain := dbToLinear(meta.GainDB)
	scratch := c.scratch[slot][:frames]

	for f := int64(0); f < toRender; f++ {
		mono := 0.0
		if f < int64(framesRead) {
			for ch := 0; ch < channels; ch++ {
				mono += dst[ch][f]
			}
			mono /= float64(channels)
		}

		positionSinceStart := clip.currentSample - meta.TrimInSamples + f
		gainIn := fadeInGain(meta.FadeInCurve, positionSinceStart, fadeInFrames)
		gainOut := 1.0
		if clip.isStopping {
			gainOut = fadeOutGain(meta.FadeOutCurve, clip.fadeOutElapsedFrame+f, fadeOutFrames)
		}
		scratch[f] = float32(mono * gainIn * gainOut * linearGain)
	}
}

// advanceClip applies the OUT-point rule and fade-out completion check
// (spec §4.7 steps 3.d/3.e and the position-clamp invariant). Returns
// true if the clip should be removed this buffer.
func (c *Controller) advanceClip(clip *activeClip, meta *ClipMetadata, frames int) bool {
	remaining := meta.TrimOutSamples - clip.currentSample
	if remaining < 0 {
		remaining = 0
	}
	toRender := int64(frames)
	if toRender > remaining {
		toRender = remaining
	}

	reachedOut := clip.currentSample+toRender >= meta.TrimOutSamples
	if reachedOut {
		if meta.LoopEnabled {
			clip.currentSample = meta.TrimInSamples
			c.enqueueEvent(EventClipLooped, clip.handle)
		} else if !clip.isStopping {
			clip.isStopping = true
			clip.fadeOutElapsedFrame = 0
		}
	} else {
		clip.currentSample += toRender
	}

	if clip.isStopping {
		clip.fadeOutElapsedFrame += int64(frames)
		fadeOutFrames := int64(meta.FadeOutSeconds * c.sampleRateHz)
		if fadeOutFrames <= 0 || clip.fadeOutElapsedFrame >= fadeOutFrames {
			c.enqueueEvent(EventClipStopped, clip.handle)
			return true
		}
	}

	if clip.currentSample < meta.TrimInSamples || clip.currentSample >= meta.TrimOutSamples {
		c.hub.LogStatus(telemetry.ComponentTransport, telemetry.StatusInternalError, "position-clamp invariant violated")
		return true
	}
	return false
}

// removeActiveLocked removes the active clip at idx by swapping in the
// last slot (caller must hold activeMu).
func (c *Controller) removeActiveLocked(idx int) {
	last := len(c.active) - 1
	if idx != last {
		c.active[idx] = c.active[last]
	}
	c.active = c.active[:last]
}

// drainCommands applies every command currently queued, in FIFO order
// (spec §4.7 step 1).
func (c *Controller) drainCommands(frames int) {
	for {
		select {
		case cmd := <-c.commands:
			c.applyCommand(cmd, frames)
		default:
			return
		}
	}
}

func (c *Controller) applyCommand(cmd command, frames int) {
	switch cmd.kind {
	case cmdStart:
		c.doStart(cmd.handle, EventClipStarted)
	case cmdStop:
		c.activeMu.Lock()
		if i := c.findActiveLocked(cmd.handle); i >= 0 {
			c.beginStopLocked(i)
		}
		c.activeMu.Unlock()
	case cmdStopAll:
		c.activeMu.Lock()
		c.beginStopAllLocked(nil)
		c.activeMu.Unlock()
	case cmdStopGroup:
		group := cmd.groupIndex
		c.activeMu.Lock()
		c.beginStopAllLocked(&group)
		c.activeMu.Unlock()
	case cmdSeek:
		c.activeMu.Lock()
		if i := c.findActiveLocked(cmd.handle); i >= 0 {
			if meta, ok := c.metadataFor(cmd.handle); ok {
				sample := cmd.seekSample
				if sample < meta.TrimInSamples {
					sample = meta.TrimInSamples
				}
				if sample >= meta.TrimOutSamples {
					sample = meta.TrimOutSamples - 1
				}
				c.active[i].currentSample = sample
				c.enqueueEvent(EventClipSeeked, cmd.handle)
			}
		}
		c.activeMu.Unlock()
	case cmdRestart:
		c.activeMu.Lock()
		i := c.findActiveLocked(cmd.handle)
		if i >= 0 {
			if meta, ok := c.metadataFor(cmd.handle); ok {
				c.active[i].currentSample = meta.TrimInSamples
				c.active[i].isStopping = false
				c.active[i].fadeOutElapsedFrame = 0
			}
			c.activeMu.Unlock()
			c.enqueueEvent(EventClipRestarted, cmd.handle)
		} else {
			c.activeMu.Unlock()
			c.doStart(cmd.handle, EventClipStarted)
		}
	case cmdUpdateMetadata:
		c.applyMetadataUpdate(cmd.handle, cmd.update)
	}
}

// beginStopLocked starts (or immediately finalizes, when no fade is
// configured) a clip's stop sequence. Caller must hold activeMu.
func (c *Controller) beginStopLocked(i int) {
	clip := &c.active[i]
	if clip.isStopping {
		return
	}
	meta, ok := c.metadataFor(clip.handle)
	if !ok || meta.FadeOutSeconds <= 0 {
		c.enqueueEvent(EventClipStopped, clip.handle)
		c.removeActiveLocked(i)
		return
	}
	clip.isStopping = true
	clip.fadeOutElapsedFrame = 0
}

// beginStopAllLocked begins stopping every active clip, or every active
// clip in *group when group is non-nil. Walks backward so that
// removeActiveLocked's swap-with-last never disturbs an index not yet
// visited. Caller must hold activeMu.
func (c *Controller) beginStopAllLocked(group *uint8) {
	for i := len(c.active) - 1; i >= 0; i-- {
		if group != nil {
			meta, ok := c.metadataFor(c.active[i].handle)
			if !ok || meta.Group != *group {
				continue
			}
		}
		c.beginStopLocked(i)
	}
}

// doStart adds handle to the active table, applying stop_others_on_play
// first if configured, and enqueues eventKind (spec §4.7 Start/Restart
// semantics).
func (c *Controller) doStart(handle Handle, eventKind EventKind) {
	meta, ok := c.metadataFor(handle)
	if !ok {
		return
	}
	c.activeMu.Lock()
	if c.findActiveLocked(handle) >= 0 {
		c.activeMu.Unlock()
		return
	}
	if len(c.active) >= MaxActiveClips {
		c.activeMu.Unlock()
		c.enqueueEvent(EventBufferUnderrun, handle)
		return
	}
	if meta.StopOthersOnPlay {
		c.beginStopAllLocked(nil)
	}
	c.active = append(c.active, activeClip{
		handle:        handle,
		reader:        meta.Reader,
		channelCount:  meta.ChannelCount,
		currentSample: meta.TrimInSamples,
		startSample:   c.currentSample.Load(),
	})
	c.activeMu.Unlock()
	c.enqueueEvent(eventKind, handle)
}

func (c *Controller) applyMetadataUpdate(h Handle, u MetadataUpdate) {
	c.metadataMu.Lock()
	meta, ok := c.metadata[h]
	if !ok {
		c.metadataMu.Unlock()
		return
	}
	if u.GainDB != nil {
		meta.GainDB = *u.GainDB
	}
	if u.TrimInSamples != nil || u.TrimOutSamples != nil {
		in, out := meta.TrimInSamples, meta.TrimOutSamples
		if u.TrimInSamples != nil {
			in = *u.TrimInSamples
		}
		if u.TrimOutSamples != nil {
			out = *u.TrimOutSamples
		}
		if in < 0 {
			in = 0
		}
		if in > meta.TotalFrames {
			in = meta.TotalFrames
		}
		if out > meta.TotalFrames {
			out = meta.TotalFrames
		}
		if out <= in {
			out = in + 1
		}
		meta.TrimInSamples = in
		meta.TrimOutSamples = out
	}
	if u.FadeInSeconds != nil {
		meta.FadeInSeconds = *u.FadeInSeconds
	}
	if u.FadeOutSeconds != nil {
		meta.FadeOutSeconds = *u.FadeOutSeconds
	}
	if u.FadeInCurve != nil {
		meta.FadeInCurve = *u.FadeInCurve
	}
	if u.FadeOutCurve != nil {
		meta.FadeOutCurve = *u.FadeOutCurve
	}
	if u.LoopEnabled != nil {
		meta.LoopEnabled = *u.LoopEnabled
	}
	if u.StopOthersOnPlay != nil {
		meta.StopOthersOnPlay = *u.StopOthersOnPlay
	}
	trimOut := meta.TrimOutSamples
	c.metadataMu.Unlock()

	if u.TrimInSamples != nil || u.TrimOutSamples != nil {
		c.activeMu.Lock()
		if i := c.findActiveLocked(h); i >= 0 && c.active[i].currentSample >= trimOut {
			c.beginStopLocked(i)
		}
		c.activeMu.Unlock()
	}
}
