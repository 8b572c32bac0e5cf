// Package selection tracks rectangular area selections drawn over a rendered
// document page and turns them into text excerpts for the context list.
//
// A gesture moves Idle -> Selecting -> Completed -> Idle. Pointer-up on a
// rectangle smaller than the minimum drag returns straight to Idle. Text is
// extracted asynchronously once a gesture completes; results that arrive after
// a newer gesture has started are dropped by comparing gesture identifiers.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNothingToCommit   = errors.New("no completed selection")
	ErrExtractionPending = errors.New("text extraction still running")
	ErrNoText            = errors.New("selection has no usable text")
)

// Phase is the externally visible gesture state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseSelecting:
		return "selecting"
	case PhaseCompleted:
		return "completed"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*p = PhaseIdle
	case "selecting":
		*p = PhaseSelecting
	case "completed":
		*p = PhaseCompleted
	default:
		return fmt.Errorf("unknown selection phase %q", b)
	}
	return nil
}

// ContextSink receives committed excerpts.
type ContextSink interface {
	Append(ctx context.Context, text string) error
}

// gestureState is one of idleState, selectingState or completedState. Idle
// carries no rectangle, so a stray rectangle cannot outlive its gesture.
type gestureState interface {
	phase() Phase
}

type idleState struct{}

type selectingState struct {
	gesture uint64
	rect    Rect
}

type completedState struct {
	gesture    uint64
	rect       Rect
	text       string
	extracting bool
}

func (idleState) phase() Phase      { return PhaseIdle }
func (selectingState) phase() Phase { return PhaseSelecting }
func (completedState) phase() Phase { return PhaseCompleted }

// Snapshot is a copy of the overlay state safe to hand to callers.
type Snapshot struct {
	Phase      Phase  `json:"phase"`
	Mode       Mode   `json:"mode"`
	Gesture    uint64 `json:"gesture,omitempty"`
	Rect       *Rect  `json:"rect,omitempty"`
	Box        *Box   `json:"box,omitempty"`
	Text       string `json:"text,omitempty"`
	Extracting bool   `json:"extracting"`
}

type Option func(*Overlay)

// WithPolicy overrides the area-to-length policy.
func WithPolicy(p Policy) Option {
	return func(o *Overlay) { o.policy = p }
}

// WithMinDrag sets the smallest width and height, in pixels, that counts as
// a drag rather than a click.
func WithMinDrag(px float64) Option {
	return func(o *Overlay) { o.minDrag = px }
}

// WithExtractTimeout bounds a single page text lookup.
func WithExtractTimeout(d time.Duration) Option {
	return func(o *Overlay) { o.timeout = d }
}

// WithNotify registers a callback run after an extraction result is applied.
// It is called without the overlay lock held.
func WithNotify(fn func(Snapshot)) Option {
	return func(o *Overlay) { o.notify = fn }
}

// Overlay is the gesture state machine for one viewer.
type Overlay struct {
	renderer PageRenderer
	sink     ContextSink
	policy   Policy
	minDrag  float64
	timeout  time.Duration
	notify   func(Snapshot)

	mu       sync.Mutex
	mode     Mode
	state    gestureState
	gen      uint64
	inflight sync.WaitGroup
}

func NewOverlay(renderer PageRenderer, sink ContextSink, opts ...Option) *Overlay {
	o := &Overlay{
		renderer: renderer,
		sink:     sink,
		policy:   DefaultPolicy,
		minDrag:  10,
		timeout:  20 * time.Second,
		mode:     ModeText,
		state:    idleState{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Overlay) SetMode(m Mode) {
	o.mu.Lock()
	o.mode = m
	o.mu.Unlock()
}

func (o *Overlay) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Begin starts a gesture at p on the given page. It reports false when the
// pointer-down does not qualify or a gesture is already in progress.
func (o *Overlay) Begin(p Pointer, pageNumber int) (Rect, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.state.(selectingState); busy {
		return Rect{}, false
	}
	if o.mode != ModeArea && !p.Modifier {
		return Rect{}, false
	}
	if p.OnTextLayer {
		return Rect{}, false
	}

	o.gen++
	r := Rect{StartX: p.X, StartY: p.Y, EndX: p.X, EndY: p.Y, PageNumber: pageNumber}
	o.state = selectingState{gesture: o.gen, rect: r}
	return r, true
}

// Update moves the free corner of the active rectangle.
func (o *Overlay) Update(pt Point) (Rect, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.state.(selectingState)
	if !ok {
		return Rect{}, false
	}
	s.rect.EndX, s.rect.EndY = pt.X, pt.Y
	o.state = s
	return s.rect, true
}

// End finishes the active gesture. Rectangles narrower or shorter than the
// minimum drag are discarded and false is returned. Otherwise extraction is
// started in the background and the completed rectangle returned.
func (o *Overlay) End(ctx context.Context) (Rect, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.state.(selectingState)
	if !ok {
		return Rect{}, false
	}
	if s.rect.Width() < o.minDrag || s.rect.Height() < o.minDrag {
		o.state = idleState{}
		return Rect{}, false
	}

	o.state = completedState{gesture: s.gesture, rect: s.rect, extracting: true}
	o.inflight.Add(1)
	go o.extract(context.WithoutCancel(ctx), s.gesture, s.rect)
	return s.rect, true
}

func (o *Overlay) extract(ctx context.Context, gesture uint64, r Rect) {
	defer o.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	text := o.policy.ExtractText(ctx, o.renderer, r)

	o.mu.Lock()
	c, ok := o.state.(completedState)
	if !ok || c.gesture != gesture {
		o.mu.Unlock()
		return
	}
	c.text = text
	c.extracting = false
	o.state = c
	snap := o.snapshotLocked()
	o.mu.Unlock()

	if o.notify != nil {
		o.notify(snap)
	}
}

// Cancel drops any rectangle and extracted text.
func (o *Overlay) Cancel() {
	o.mu.Lock()
	o.state = idleState{}
	o.mu.Unlock()
}

// Commit hands text to the context sink, then clears the selection. On sink
// failure the selection is left in place, and a gesture begun while the sink
// was busy survives either way.
func (o *Overlay) Commit(ctx context.Context, r Rect, text string) error {
	if o.sink == nil {
		return errors.New("selection: no context sink configured")
	}
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()

	if err := o.sink.Append(ctx, text); err != nil {
		return fmt.Errorf("add selection from page %d to context: %w", r.PageNumber, err)
	}

	o.mu.Lock()
	if o.gen == gen {
		o.state = idleState{}
	}
	o.mu.Unlock()
	return nil
}

// CommitCurrent commits the completed selection's own excerpt. Placeholder
// excerpts are refused.
func (o *Overlay) CommitCurrent(ctx context.Context) (string, error) {
	o.mu.Lock()
	c, ok := o.state.(completedState)
	o.mu.Unlock()

	switch {
	case !ok:
		return "", ErrNothingToCommit
	case c.extracting:
		return "", ErrExtractionPending
	case c.text == NoTextPlaceholder || c.text == ErrorPlaceholder:
		return "", ErrNoText
	}
	if o.sink == nil {
		return "", errors.New("selection: no context sink configured")
	}
	if err := o.sink.Append(ctx, c.text); err != nil {
		return "", fmt.Errorf("add selection from page %d to context: %w", c.rect.PageNumber, err)
	}

	// A gesture begun while the sink was busy keeps its state.
	o.mu.Lock()
	if cur, ok := o.state.(completedState); ok && cur.gesture == c.gesture {
		o.state = idleState{}
	}
	o.mu.Unlock()
	return c.text, nil
}

// Wait blocks until every started extraction has finished.
func (o *Overlay) Wait() {
	o.inflight.Wait()
}

func (o *Overlay) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Overlay) snapshotLocked() Snapshot {
	snap := Snapshot{Phase: o.state.phase(), Mode: o.mode}
	switch s := o.state.(type) {
	case selectingState:
		r := s.rect
		snap.Gesture, snap.Rect = s.gesture, &r
	case completedState:
		r := s.rect
		snap.Gesture, snap.Rect = s.gesture, &r
		snap.Text, snap.Extracting = s.text, s.extracting
	}
	if snap.Rect != nil {
		b := snap.Rect.Box()
		snap.Box = &b
	}
	return snap
}
