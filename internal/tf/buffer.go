// Package tf keeps a time-indexed tree of coordinate frames and answers
// transform queries between any two connected frames.
//
// Each child frame has exactly one parent. Non-static frames keep a short
// history of stamped transforms so queries at past times interpolate
// between samples; static frames are valid at every time.
package tf

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/monitoring"
)

// DefaultCacheTime is how much history each frame keeps.
const DefaultCacheTime = 10 * time.Second

// maxDepth bounds a walk up the tree; deeper chains are treated as cycles.
const maxDepth = 256

var (
	ErrUnknownFrame  = errors.New("unknown frame")
	ErrNotConnected  = errors.New("frames are not connected")
	ErrExtrapolation = errors.New("lookup outside buffered time range")
)

var logf = monitoring.Component("TF")

// StampedTransform is the pose of Child expressed in Parent at Stamp.
type StampedTransform struct {
	Parent    string
	Child     string
	Stamp     time.Time
	Transform geom.Pose
}

// StampedPose is a pose expressed in Frame at Stamp. A zero Stamp means
// "latest available".
type StampedPose struct {
	Frame string
	Stamp time.Time
	Pose  geom.Pose
}

type frameCache struct {
	parent  string
	static  bool
	samples []StampedTransform // ascending by Stamp
}

// Buffer is a concurrency-safe transform tree.
type Buffer struct {
	mu        sync.RWMutex
	cacheTime time.Duration
	frames    map[string]*frameCache
	parents   map[string]int // how many children name each frame as parent
}

// NewBuffer returns an empty buffer keeping cacheTime of history per frame.
// A non-positive cacheTime selects DefaultCacheTime.
func NewBuffer(cacheTime time.Duration) *Buffer {
	if cacheTime <= 0 {
		cacheTime = DefaultCacheTime
	}
	return &Buffer{
		cacheTime: cacheTime,
		frames:    make(map[string]*frameCache),
		parents:   make(map[string]int),
	}
}

// SetTransform records a dynamic transform sample.
func (b *Buffer) SetTransform(st StampedTransform) error {
	return b.set(st, false)
}

// SetStaticTransform records a transform valid at all times.
func (b *Buffer) SetStaticTransform(st StampedTransform) error {
	return b.set(st, true)
}

func (b *Buffer) set(st StampedTransform, static bool) error {
	if st.Parent == "" || st.Child == "" {
		return fmt.Errorf("transform needs both parent and child frame ids")
	}
	if st.Parent == st.Child {
		return fmt.Errorf("frame %q cannot be its own parent", st.Child)
	}
	if err := st.Transform.Validate(); err != nil {
		return fmt.Errorf("transform %s -> %s: %w", st.Parent, st.Child, err)
	}
	if !static && st.Stamp.IsZero() {
		return fmt.Errorf("transform %s -> %s has no timestamp", st.Parent, st.Child)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fc, ok := b.frames[st.Child]
	if ok && (fc.parent != st.Parent || fc.static != static) {
		logf("frame %q re-parented from %q to %q, dropping history", st.Child, fc.parent, st.Parent)
		b.parents[fc.parent]--
		ok = false
	}
	if !ok {
		fc = &frameCache{parent: st.Parent, static: static}
		b.frames[st.Child] = fc
		b.parents[st.Parent]++
	}

	if static {
		fc.samples = []StampedTransform{st}
		return nil
	}

	i := sort.Search(len(fc.samples), func(i int) bool {
		return !fc.samples[i].Stamp.Before(st.Stamp)
	})
	if i < len(fc.samples) && fc.samples[i].Stamp.Equal(st.Stamp) {
		fc.samples[i] = st
	} else {
		fc.samples = append(fc.samples, StampedTransform{})
		copy(fc.samples[i+1:], fc.samples[i:])
		fc.samples[i] = st
	}

	// prune history older than the cache window
	cutoff := fc.samples[len(fc.samples)-1].Stamp.Add(-b.cacheTime)
	drop := 0
	for drop < len(fc.samples)-1 && fc.samples[drop].Stamp.Before(cutoff) {
		drop++
	}
	fc.samples = fc.samples[drop:]
	return nil
}

// Frames lists every frame the buffer knows about, sorted.
func (b *Buffer) Frames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.frames)+1)
	for f := range b.frames {
		out = append(out, f)
	}
	for f, n := range b.parents {
		if _, child := b.frames[f]; n > 0 && !child {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// LatestCommonTime returns the most recent time at which a transform
// between the two frames can be computed. A zero time with a nil error
// means the chain is fully static (or the frames are identical) and any
// time will do.
func (b *Buffer) LatestCommonTime(target, source string) (time.Time, error) {
	if target == source {
		return time.Time{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	targetChain, sourceChain, err := b.chains(target, source)
	if err != nil {
		return time.Time{}, err
	}

	var common time.Time
	for _, chain := range [][]string{targetChain, sourceChain} {
		for _, f := range chain {
			fc := b.frames[f]
			if fc.static {
				continue
			}
			latest := fc.samples[len(fc.samples)-1].Stamp
			if common.IsZero() || latest.Before(common) {
				common = latest
			}
		}
	}
	return common, nil
}

// CanTransform reports whether a transform from source to target exists at
// the given time.
func (b *Buffer) CanTransform(target, source string, at time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, err := b.lookup(target, source, at)
	return err == nil
}

// LookupTransform returns the pose of source expressed in target at the
// given time.
func (b *Buffer) LookupTransform(target, source string, at time.Time) (geom.Pose, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.lookup(target, source, at)
}

// TransformPose re-expresses p in the target frame at p's timestamp.
func (b *Buffer) TransformPose(target string, p StampedPose) (StampedPose, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, err := b.lookup(target, p.Frame, p.Stamp)
	if err != nil {
		return StampedPose{}, fmt.Errorf("transform from %q to %q: %w", p.Frame, target, err)
	}
	return StampedPose{Frame: target, Stamp: p.Stamp, Pose: t.Compose(p.Pose)}, nil
}

func (b *Buffer) lookup(target, source string, at time.Time) (geom.Pose, error) {
	if target == source {
		return geom.Identity(), nil
	}
	targetChain, sourceChain, err := b.chains(target, source)
	if err != nil {
		return geom.Pose{}, err
	}

	toAncestor := func(chain []string) (geom.Pose, error) {
		acc := geom.Identity()
		for _, f := range chain {
			s, err := b.sample(f, at)
			if err != nil {
				return geom.Pose{}, err
			}
			acc = s.Compose(acc)
		}
		return acc, nil
	}

	ancSource, err := toAncestor(sourceChain)
	if err != nil {
		return geom.Pose{}, err
	}
	ancTarget, err := toAncestor(targetChain)
	if err != nil {
		return geom.Pose{}, err
	}
	return ancTarget.Inverse().Compose(ancSource), nil
}

// sample returns the parent<-frame transform of f at time at.
func (b *Buffer) sample(f string, at time.Time) (geom.Pose, error) {
	fc := b.frames[f]
	n := len(fc.samples)
	if fc.static || at.IsZero() {
		return fc.samples[n-1].Transform, nil
	}

	first, last := fc.samples[0], fc.samples[n-1]
	if at.Before(first.Stamp) || at.After(last.Stamp) {
		return geom.Pose{}, fmt.Errorf("%w: frame %q at %s, buffered [%s, %s]",
			ErrExtrapolation, f, at.Format(time.RFC3339Nano),
			first.Stamp.Format(time.RFC3339Nano), last.Stamp.Format(time.RFC3339Nano))
	}

	i := sort.Search(n, func(i int) bool { return !fc.samples[i].Stamp.Before(at) })
	if fc.samples[i].Stamp.Equal(at) {
		return fc.samples[i].Transform, nil
	}
	lo, hi := fc.samples[i-1], fc.samples[i]
	frac := float64(at.Sub(lo.Stamp)) / float64(hi.Stamp.Sub(lo.Stamp))
	return geom.Interpolate(lo.Transform, hi.Transform, frac), nil
}

// chains returns the frames walked from target and from source up to (but
// excluding) their closest common ancestor.
func (b *Buffer) chains(target, source string) ([]string, []string, error) {
	targetPath, err := b.pathToRoot(target)
	if err != nil {
		return nil, nil, err
	}
	sourcePath, err := b.pathToRoot(source)
	if err != nil {
		return nil, nil, err
	}

	onTarget := make(map[string]int, len(targetPath))
	for i, f := range targetPath {
		onTarget[f] = i
	}
	for j, f := range sourcePath {
		if i, ok := onTarget[f]; ok {
			return targetPath[:i], sourcePath[:j], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %q and %q", ErrNotConnected, target, source)
}

func (b *Buffer) pathToRoot(frame string) ([]string, error) {
	if _, ok := b.frames[frame]; !ok && b.parents[frame] == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, frame)
	}
	path := []string{frame}
	for f := frame; ; {
		fc, ok := b.frames[f]
		if !ok {
			return path, nil
		}
		if len(path) > maxDepth {
			return nil, fmt.Errorf("frame %q: parent chain deeper than %d (cycle?)", frame, maxDepth)
		}
		f = fc.parent
		path = append(path, f)
	}
}
