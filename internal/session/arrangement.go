package session

import "sort"

// TriggerScene records a pending scene-trigger event, accumulated until
// the next CommitArrangement (spec §3, §4.1).
func (g *SessionGraph) TriggerScene(sceneIndex uint32, positionBeats float64, window QuantizationWindow) {
	g.events = append(g.events, sceneEvent{sceneIndex: sceneIndex, positionBeats: positionBeats, window: window})
}

// EndScene records a pending scene-end event.
func (g *SessionGraph) EndScene(sceneIndex uint32, positionBeats float64, window QuantizationWindow) {
	g.events = append(g.events, sceneEvent{sceneIndex: sceneIndex, positionBeats: positionBeats, window: window, isEnd: true})
}

// CommitArrangement implements the arrangement-commit algorithm of spec
// §4.1: quantize accumulated trigger/end events, resolve each scene's
// length, place committed clips on a linear timeline, and recompute the
// session range to span them. Arranged clips supersede the raw timeline:
// Committed replaces any previous committed arrangement.
//
// fallbackSceneLengthBeats is used (per clip) only when a scene has a
// trigger but no matching end event; pass nil to use each clip's own
// length unmodified.
func (g *SessionGraph) CommitArrangement(fallbackSceneLengthBeats *float64) []CommittedClip {
	var triggers, ends []sceneEvent
	for _, e := range g.events {
		if e.isEnd {
			ends = append(ends, e)
		} else {
			triggers = append(triggers, e)
		}
	}

	endUsed := make([]bool, len(ends))
	var committed []CommittedClip

	for _, trig := range triggers {
		start := QuantizeTrigger(trig.positionBeats, trig.window)

		var sceneLength float64
		haveEnd := false
		for ei, end := range ends {
			if endUsed[ei] || end.sceneIndex != trig.sceneIndex {
				continue
			}
			endQ := QuantizeTrigger(end.positionBeats, end.window)
			sceneLength = endQ - start
			endUsed[ei] = true
			haveEnd = true
			break
		}

		for trackIdx, th := range g.trackOrder {
			t, ok := g.tracks.get(th)
			if !ok {
				continue
			}
			for _, c := range t.Clips {
				if c.SceneIndex == nil || *c.SceneIndex != trig.sceneIndex {
					continue
				}
				length := c.LengthBeats
				if !haveEnd {
					if fallbackSceneLengthBeats != nil && *fallbackSceneLengthBeats < length {
						length = *fallbackSceneLengthBeats
					}
				} else if sceneLength < length {
					length = sceneLength
				}
				committed = append(committed, CommittedClip{
					TrackHandle:         th,
					TrackIndex:          trackIdx,
					SceneIndex:          trig.sceneIndex,
					ArrangedStartBeats:  start,
					ArrangedLengthBeats: length,
					originalClipIndex:   c.OriginalOrder,
				})
			}
		}
	}

	sort.SliceStable(committed, func(i, j int) bool {
		a, b := committed[i], committed[j]
		if a.SceneIndex != b.SceneIndex {
			return a.SceneIndex < b.SceneIndex
		}
		if a.TrackIndex != b.TrackIndex {
			return a.TrackIndex < b.TrackIndex
		}
		return a.originalClipIndex < b.originalClipIndex
	})

	g.events = nil
	g.Committed = committed
	g.recomputeRangeFromCommitted()
	return committed
}

func (g *SessionGraph) recomputeRangeFromCommitted() {
	if len(g.Committed) == 0 {
		g.Start, g.End = 0, 0
		return
	}
	min := g.Committed[0].ArrangedStartBeats
	max := g.Committed[0].ArrangedStartBeats + g.Committed[0].ArrangedLengthBeats
	for _, c := range g.Committed[1:] {
		if c.ArrangedStartBeats < min {
			min = c.ArrangedStartBeats
		}
		if end := c.ArrangedStartBeats + c.ArrangedLengthBeats; end > max {
			max = end
		}
	}
	g.Start, g.End = min, max
}
