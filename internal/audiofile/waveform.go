package audiofile

// GetWaveformData returns per-pixel min/max peaks over [start, end) frames
// for channel, computed via a single pass over the cached samples (spec
// §4.5 extended variant).
func (r *Reader) GetWaveformData(start, end int64, pixelWidth int, channel int) [][2]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pixelWidth <= 0 || channel < 0 || channel >= r.channels {
		return nil
	}
	if start < 0 {
		start = 0
	}
	if end > r.totalFrames {
		end = r.totalFrames
	}
	if end <= start {
		return make([][2]float32, pixelWidth)
	}

	out := make([][2]float32, pixelWidth)
	span := end - start
	samples := r.samples[channel]
	for px := 0; px < pixelWidth; px++ {
		lo := start + span*int64(px)/int64(pixelWidth)
		hi := start + span*int64(px+1)/int64(pixelWidth)
		if hi <= lo {
			hi = lo + 1
		}
		if hi > end {
			hi = end
		}
		min, max := float32(1), float32(-1)
		for i := lo; i < hi; i++ {
			v := float32(samples[i])
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		out[px] = [2]float32{min, max}
	}
	return out
}

// PrecomputeWaveformAsync spawns one background worker that computes and
// caches per-channel peak levels, invoking callback exactly once on
// completion (spec §4.5 extended variant). Repeated calls share a single
// computation via sync.Once.
func (r *Reader) PrecomputeWaveformAsync(pixelWidth int, callback func()) {
	go func() {
		r.waveformOnce.Do(func() {
			r.mu.Lock()
			total := r.totalFrames
			channels := r.channels
			r.mu.Unlock()

			cache := make(map[int][]peakPair, channels)
			for c := 0; c < channels; c++ {
				peaks := r.GetWaveformData(0, total, pixelWidth, c)
				pairs := make([]peakPair, len(peaks))
				for i, p := range peaks {
					pairs[i] = peakPair{min: p[0], max: p[1]}
				}
				cache[c] = pairs
			}

			r.mu.Lock()
			r.waveformCache = cache
			r.mu.Unlock()
		})
		if callback != nil {
			callback()
		}
	}()
}

// CachedWaveform returns the peaks computed by a prior
// PrecomputeWaveformAsync call for channel, if available.
func (r *Reader) CachedWaveform(channel int) ([][2]float32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waveformCache == nil {
		return nil, false
	}
	pairs, ok := r.waveformCache[channel]
	if !ok {
		return nil, false
	}
	out := make([][2]float32, len(pairs))
	for i, p := range pairs {
		out[i] = [2]float32{p.min, p.max}
	}
	return out, true
}
