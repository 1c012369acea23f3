// Package adm implements the ADM Entity Graph leaf (C16):
// Programme/Content/Bed/Object topology with trajectory thinning and a
// JSON debug dump (spec §2 C16).
package adm

import (
	"math"

	"orpheuscore/internal/jsonval"
)

// slopeTolerance bounds how close three consecutive trajectory points'
// slopes must be for the middle point to be considered redundant
// (spec: "trajectory thinning"; original_source's kSlopeTolerance).
const slopeTolerance = 1e-7

// EntityKind enumerates the four ADM entity types (spec §2 C16).
type EntityKind int

const (
	KindProgramme EntityKind = iota
	KindContent
	KindBed
	KindObject
)

func (k EntityKind) String() string {
	switch k {
	case KindProgramme:
		return "programme"
	case KindContent:
		return "content"
	case KindBed:
		return "bed"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Envelope is the common identity carried by every entity.
type Envelope struct {
	ID   string
	Name string
	Kind EntityKind
}

// BedChannel is one channel of a Bed entity.
type BedChannel struct {
	ID   string
	Name string
}

// ObjectPoint is one sample of an Object's position trajectory.
type ObjectPoint struct {
	TimeSeconds float64
	X, Y, Z     float64
}

// ThinningPolicy selects whether Trajectory collapses collinear
// interior points.
type ThinningPolicy int

const (
	ThinningDisabled ThinningPolicy = iota
	ThinningEnabled
)

// Bed is a fixed-channel-layout entity.
type Bed struct {
	Envelope Envelope
	Channels []BedChannel
}

// AddChannel appends a channel to the bed.
func (b *Bed) AddChannel(ch BedChannel) { b.Channels = append(b.Channels, ch) }

// Object is a moving point-source entity.
type Object struct {
	Envelope Envelope
	points   []ObjectPoint
}

// AddPoint appends a trajectory sample.
func (o *Object) AddPoint(p ObjectPoint) { o.points = append(o.points, p) }

// Trajectory returns the object's position samples, optionally thinned
// (spec: "trajectory thinning").
func (o *Object) Trajectory(policy ThinningPolicy) []ObjectPoint {
	if policy == ThinningEnabled {
		return ThinTrajectory(o.points)
	}
	return o.points
}

// Content groups beds and objects under one programme element.
type Content struct {
	Envelope Envelope
	beds     []int
	objects  []int
}

// AttachBed links a bed index to this content, deduplicating repeats.
func (c *Content) AttachBed(bedIndex int) {
	if !containsInt(c.beds, bedIndex) {
		c.beds = append(c.beds, bedIndex)
	}
}

// AttachObject links an object index to this content, deduplicating
// repeats.
func (c *Content) AttachObject(objectIndex int) {
	if !containsInt(c.objects, objectIndex) {
		c.objects = append(c.objects, objectIndex)
	}
}

// Beds returns the attached bed indices.
func (c *Content) Beds() []int { return c.beds }

// Objects returns the attached object indices.
func (c *Content) Objects() []int { return c.objects }

// Programme is the top-level ADM grouping.
type Programme struct {
	Envelope Envelope
	contents []int
}

// AttachContent links a content index to this programme, deduplicating
// repeats.
func (p *Programme) AttachContent(contentIndex int) {
	if !containsInt(p.contents, contentIndex) {
		p.contents = append(p.contents, contentIndex)
	}
}

// Contents returns the attached content indices.
func (p *Programme) Contents() []int { return p.contents }

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Graph owns every entity and the links between them (spec §2 C16
// "Programme/Content/Bed/Object topology").
type Graph struct {
	programmes []*Programme
	contents   []*Content
	beds       []*Bed
	objects    []*Object
}

// NewGraph constructs an empty entity graph.
func NewGraph() *Graph { return &Graph{} }

// AddProgramme creates and returns a new Programme.
func (g *Graph) AddProgramme(envelope Envelope) *Programme {
	p := &Programme{Envelope: envelope}
	g.programmes = append(g.programmes, p)
	return p
}

// AddContent creates and returns a new Content.
func (g *Graph) AddContent(envelope Envelope) *Content {
	c := &Content{Envelope: envelope}
	g.contents = append(g.contents, c)
	return c
}

// AddBed creates and returns a new Bed.
func (g *Graph) AddBed(envelope Envelope) *Bed {
	b := &Bed{Envelope: envelope}
	g.beds = append(g.beds, b)
	return b
}

// AddObject creates and returns a new Object.
func (g *Graph) AddObject(envelope Envelope) *Object {
	o := &Object{Envelope: envelope}
	g.objects = append(g.objects, o)
	return o
}

func (g *Graph) programmeIndex(p *Programme) int { return indexOfProgramme(g.programmes, p) }
func (g *Graph) contentIndex(c *Content) int     { return indexOfContent(g.contents, c) }
func (g *Graph) bedIndex(b *Bed) int             { return indexOfBed(g.beds, b) }
func (g *Graph) objectIndex(o *Object) int       { return indexOfObject(g.objects, o) }

func indexOfProgramme(s []*Programme, v *Programme) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
func indexOfContent(s []*Content, v *Content) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
func indexOfBed(s []*Bed, v *Bed) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
func indexOfObject(s []*Object, v *Object) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// LinkProgrammeToContent attaches content under programme.
func (g *Graph) LinkProgrammeToContent(programme *Programme, content *Content) {
	if idx := g.contentIndex(content); idx >= 0 {
		programme.AttachContent(idx)
	}
}

// LinkContentToBed attaches bed under content.
func (g *Graph) LinkContentToBed(content *Content, bed *Bed) {
	if idx := g.bedIndex(bed); idx >= 0 {
		content.AttachBed(idx)
	}
}

// LinkContentToObject attaches object under content.
func (g *Graph) LinkContentToObject(content *Content, object *Object) {
	if idx := g.objectIndex(object); idx >= 0 {
		content.AttachObject(idx)
	}
}

// ProgrammeCount reports the number of programmes in the graph.
func (g *Graph) ProgrammeCount() int { return len(g.programmes) }

// ContentCount reports the number of content elements in the graph.
func (g *Graph) ContentCount() int { return len(g.contents) }

// BedCount reports the number of beds in the graph.
func (g *Graph) BedCount() int { return len(g.beds) }

// ObjectCount reports the number of objects in the graph.
func (g *Graph) ObjectCount() int { return len(g.objects) }

// ThinTrajectory drops interior points whose slope, on all three axes,
// doesn't differ meaningfully from the segment before and after it
// (spec: "trajectory thinning"; grounded on original_source's
// IsRedundantPoint/ThinTrajectory).
func ThinTrajectory(points []ObjectPoint) []ObjectPoint {
	if len(points) <= 2 {
		return points
	}
	result := make([]ObjectPoint, 0, len(points))
	result = append(result, points[0])
	for i := 1; i+1 < len(points); i++ {
		prev := result[len(result)-1]
		curr := points[i]
		next := points[i+1]
		if !isRedundantPoint(prev, curr, next) {
			result = append(result, curr)
		}
	}
	result = append(result, points[len(points)-1])
	return result
}

func isRedundantPoint(previous, current, next ObjectPoint) bool {
	if current.TimeSeconds <= previous.TimeSeconds || next.TimeSeconds <= current.TimeSeconds {
		return false
	}
	deltaPrev := current.TimeSeconds - previous.TimeSeconds
	deltaNext := next.TimeSeconds - current.TimeSeconds

	slopeMatches := func(a, b, c float64) bool {
		slopePrev := (b - a) / deltaPrev
		slopeNext := (c - b) / deltaNext
		return math.Abs(slopePrev-slopeNext) <= slopeTolerance
	}

	return slopeMatches(previous.X, current.X, next.X) &&
		slopeMatches(previous.Y, current.Y, next.Y) &&
		slopeMatches(previous.Z, current.Z, next.Z)
}

// DebugDumpJSON renders the full graph topology as JSON (spec §2 C16
// "JSON dump"), applying policy to every object's trajectory.
func (g *Graph) DebugDumpJSON(policy ThinningPolicy) string {
	var programmes []jsonval.Value
	for _, p := range g.programmes {
		var contentIDs []jsonval.Value
		for _, idx := range p.contents {
			contentIDs = append(contentIDs, jsonval.String(g.contents[idx].Envelope.ID))
		}
		programmes = append(programmes, jsonval.Object(
			envelopeMembers(p.Envelope, jsonval.Member{Key: "contents", Value: jsonval.Array(contentIDs...)})...,
		))
	}

	var contents []jsonval.Value
	for _, c := range g.contents {
		var bedIDs, objectIDs []jsonval.Value
		for _, idx := range c.beds {
			bedIDs = append(bedIDs, jsonval.String(g.beds[idx].Envelope.ID))
		}
		for _, idx := range c.objects {
			objectIDs = append(objectIDs, jsonval.String(g.objects[idx].Envelope.ID))
		}
		contents = append(contents, jsonval.Object(
			envelopeMembers(c.Envelope,
				jsonval.Member{Key: "beds", Value: jsonval.Array(bedIDs...)},
				jsonval.Member{Key: "objects", Value: jsonval.Array(objectIDs...)},
			)...,
		))
	}

	var beds []jsonval.Value
	for _, b := range g.beds {
		var channels []jsonval.Value
		for _, ch := range b.Channels {
			channels = append(channels, jsonval.Object(
				jsonval.Member{Key: "id", Value: jsonval.String(ch.ID)},
				jsonval.Member{Key: "name", Value: jsonval.String(ch.Name)},
			))
		}
		beds = append(beds, jsonval.Object(
			envelopeMembers(b.Envelope, jsonval.Member{Key: "channels", Value: jsonval.Array(channels...)})...,
		))
	}

	var objects []jsonval.Value
	for _, o := range g.objects {
		var points []jsonval.Value
		for _, pt := range o.Trajectory(policy) {
			points = append(points, jsonval.Object(
				jsonval.Member{Key: "time_seconds", Value: jsonval.Number(pt.TimeSeconds)},
				jsonval.Member{Key: "x", Value: jsonval.Number(pt.X)},
				jsonval.Member{Key: "y", Value: jsonval.Number(pt.Y)},
				jsonval.Member{Key: "z", Value: jsonval.Number(pt.Z)},
			))
		}
		objects = append(objects, jsonval.Object(
			envelopeMembers(o.Envelope, jsonval.Member{Key: "trajectory", Value: jsonval.Array(points...)})...,
		))
	}

	return jsonval.Write(jsonval.Object(
		jsonval.Member{Key: "programmes", Value: jsonval.Array(programmes...)},
		jsonval.Member{Key: "contents", Value: jsonval.Array(contents...)},
		jsonval.Member{Key: "beds", Value: jsonval.Array(beds...)},
		jsonval.Member{Key: "objects", Value: jsonval.Array(objects...)},
	))
}

func envelopeMembers(e Envelope, extra ...jsonval.Member) []jsonval.Member {
	members := []jsonval.Member{
		{Key: "id", Value: jsonval.String(e.ID)},
		{Key: "name", Value: jsonval.String(e.Name)},
		{Key: "kind", Value: jsonval.String(e.Kind.String())},
	}
	return append(members, extra...)
}
