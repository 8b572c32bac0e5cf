package selection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	// gate, when set, blocks PageText until a value is received.
	gate chan struct{}
}

func (s *stubRenderer) PageText(ctx context.Context, page int) ([]TextFragment, error) {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return []TextFragment{{Text: s.text}}, nil
}

func (s *stubRenderer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSink struct {
	texts []string
	err   error
}

func (r *recordingSink) Append(_ context.Context, text string) error {
	if r.err != nil {
		return r.err
	}
	r.texts = append(r.texts, text)
	return nil
}

func areaPointer(x, y float64) Pointer {
	return Pointer{Point: Point{X: x, Y: y}}
}

func TestBegin_AreaModeStartsGesture(t *testing.T) {
	o := NewOverlay(&stubRenderer{}, &recordingSink{})
	o.SetMode(ModeArea)

	r, ok := o.Begin(areaPointer(100, 100), 1)
	require.True(t, ok)
	assert.Equal(t, Rect{StartX: 100, StartY: 100, EndX: 100, EndY: 100, PageNumber: 1}, r)
	assert.Equal(t, PhaseSelecting, o.Snapshot().Phase)
}

func TestBegin_TextModeNeedsModifier(t *testing.T) {
	o := NewOverlay(&stubRenderer{}, &recordingSink{})

	_, ok := o.Begin(areaPointer(10, 10), 1)
	require.False(t, ok)
	require.Equal(t, PhaseIdle, o.Snapshot().Phase)

	_, ok = o.Begin(Pointer{Point: Point{X: 10, Y: 10}, Modifier: true}, 1)
	require.True(t, ok)
	require.Equal(t, PhaseSelecting, o.Snapshot().Phase)
}

func TestBegin_IgnoresTextLayer(t *testing.T) {
	o := NewOverlay(&stubRenderer{}, &recordingSink{})
	o.SetMode(ModeArea)

	_, ok := o.Begin(Pointer{Point: Point{X: 5, Y: 5}, OnTextLayer: true}, 1)
	require.False(t, ok)
	require.Equal(t, PhaseIdle, o.Snapshot().Phase)
	require.Nil(t, o.Snapshot().Rect)
}

func TestBegin_WhileSelectingIsNoop(t *testing.T) {
	o := NewOverlay(&stubRenderer{}, &recordingSink{})
	o.SetMode(ModeArea)

	first, ok := o.Begin(areaPointer(1, 2), 1)
	require.True(t, ok)
	_, ok = o.Begin(areaPointer(50, 60), 2)
	require.False(t, ok)

	snap := o.Snapshot()
	require.NotNil(t, snap.Rect)
	assert.Equal(t, first, *snap.Rect)
}

func TestUpdate_OnlyMovesEndPoint(t *testing.T) {
	o := NewOverlay(&stubRenderer{}, &recordingSink{})
	o.SetMode(ModeArea)
	o.Begin(areaPointer(20, 30), 3)

	moves := []Point{{X: 25, Y: 31}, {X: 5, Y: 300}, {X: 400, Y: 2}, {X: -10, Y: -10}}
	for _, m := range moves {
		r, ok := o.Update(m)
		require.True(t, ok)
		assert.Equal(t, 20.0, r.StartX)
		assert.Equal(t, 30.0, r.StartY)
		assert.Equal(t, m.X, r.EndX)
		assert.Equal(t, m.Y, r.EndY)
		assert.Equal(t, 3, r.PageNumber)
	}
}

func TestUpdateAndEnd_WithoutGestureAreNoops(t *testing.T) {
	o := NewOverlay(&stubRenderer{}, &recordingSink{})

	_, ok := o.Update(Point{X: 1, Y: 1})
	assert.False(t, ok)
	_, ok = o.End(context.Background())
	assert.False(t, ok)
	assert.Equal(t, PhaseIdle, o.Snapshot().Phase)
}

func TestEnd_ClickWithoutMovementIsDiscarded(t *testing.T) {
	renderer := &stubRenderer{text: "page text"}
	o := NewOverlay(renderer, &recordingSink{})
	o.SetMode(ModeArea)

	o.Begin(areaPointer(100, 100), 1)
	o.Update(Point{X: 100, Y: 100})
	_, ok := o.End(context.Background())
	o.Wait()

	require.False(t, ok)
	snap := o.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Rect)
	assert.Zero(t, renderer.Calls())
}

func TestEnd_ThinRectangleIsDiscarded(t *testing.T) {
	cases := []Point{{X: 109, Y: 300}, {X: 300, Y: 109}, {X: 91, Y: 91}}
	for _, end := range cases {
		renderer := &stubRenderer{text: "page text"}
		o := NewOverlay(renderer, &recordingSink{})
		o.SetMode(ModeArea)
		o.Begin(areaPointer(100, 100), 1)
		o.Update(end)
		_, ok := o.End(context.Background())
		o.Wait()
		assert.False(t, ok, "end %+v", end)
		assert.Zero(t, renderer.Calls())
	}
}

func TestEnd_DragCompletesAndExtracts(t *testing.T) {
	renderer := &stubRenderer{text: strings.Repeat("lorem ipsum ", 100)}
	o := NewOverlay(renderer, &recordingSink{})
	o.SetMode(ModeArea)

	o.Begin(areaPointer(50, 50), 1)
	o.Update(Point{X: 250, Y: 300})
	r, ok := o.End(context.Background())
	require.True(t, ok)
	assert.Equal(t, Rect{StartX: 50, StartY: 50, EndX: 250, EndY: 300, PageNumber: 1}, r)

	o.Wait()
	snap := o.Snapshot()
	require.Equal(t, PhaseCompleted, snap.Phase)
	assert.False(t, snap.Extracting)
	assert.NotEmpty(t, snap.Text)
	assert.Equal(t, 1, renderer.Calls())
}

func TestEnd_ExtractionFailureYieldsPlaceholder(t *testing.T) {
	o := NewOverlay(&stubRenderer{err: errors.New("page load rejected")}, &recordingSink{})
	o.SetMode(ModeArea)

	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 40, Y: 40})
	_, ok := o.End(context.Background())
	require.True(t, ok)
	o.Wait()

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, ErrorPlaceholder, snap.Text)

	o.Cancel()
	assert.Equal(t, PhaseIdle, o.Snapshot().Phase)
}

func TestCancel_ClearsWithoutTouchingSink(t *testing.T) {
	sink := &recordingSink{}
	o := NewOverlay(&stubRenderer{text: "abc"}, sink)
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 100, Y: 100})
	o.End(context.Background())
	o.Wait()

	o.Cancel()
	snap := o.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Rect)
	assert.Empty(t, snap.Text)
	assert.Empty(t, sink.texts)
}

func TestCommit_AppendsOnceAndResets(t *testing.T) {
	sink := &recordingSink{}
	o := NewOverlay(&stubRenderer{text: "abc"}, sink)
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 100, Y: 100})
	r, _ := o.End(context.Background())
	o.Wait()

	require.NoError(t, o.Commit(context.Background(), r, "sample text"))
	assert.Equal(t, []string{"sample text"}, sink.texts)
	assert.Equal(t, PhaseIdle, o.Snapshot().Phase)
}

type hookSink struct {
	onAppend func()
	texts    []string
}

func (h *hookSink) Append(_ context.Context, text string) error {
	if h.onAppend != nil {
		h.onAppend()
	}
	h.texts = append(h.texts, text)
	return nil
}

func TestCommit_KeepsGestureBegunDuringAppend(t *testing.T) {
	sink := &hookSink{}
	o := NewOverlay(&stubRenderer{text: "abc"}, sink)
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 100, Y: 100})
	r, _ := o.End(context.Background())
	o.Wait()

	sink.onAppend = func() {
		_, ok := o.Begin(areaPointer(200, 200), 2)
		require.True(t, ok)
	}
	require.NoError(t, o.Commit(context.Background(), r, "abc"))

	snap := o.Snapshot()
	assert.Equal(t, PhaseSelecting, snap.Phase)
	assert.Equal(t, []string{"abc"}, sink.texts)
}

func TestCommit_SinkFailureKeepsSelection(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	o := NewOverlay(&stubRenderer{text: "abc"}, sink)
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 100, Y: 100})
	r, _ := o.End(context.Background())
	o.Wait()

	err := o.Commit(context.Background(), r, "abc")
	require.Error(t, err)
	assert.Equal(t, PhaseCompleted, o.Snapshot().Phase)
}

func TestCommitCurrent(t *testing.T) {
	sink := &recordingSink{}
	renderer := &stubRenderer{text: "the quick brown fox", gate: make(chan struct{})}
	o := NewOverlay(renderer, sink)
	o.SetMode(ModeArea)

	_, err := o.CommitCurrent(context.Background())
	require.ErrorIs(t, err, ErrNothingToCommit)

	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 100, Y: 100})
	o.End(context.Background())

	_, err = o.CommitCurrent(context.Background())
	require.ErrorIs(t, err, ErrExtractionPending)

	close(renderer.gate)
	o.Wait()

	text, err := o.CommitCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", text)
	assert.Equal(t, []string{"the quick brown fox"}, sink.texts)
	assert.Equal(t, PhaseIdle, o.Snapshot().Phase)
}

func TestCommitCurrent_RefusesPlaceholder(t *testing.T) {
	sink := &recordingSink{}
	o := NewOverlay(&stubRenderer{text: "   "}, sink)
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 100, Y: 100})
	o.End(context.Background())
	o.Wait()

	require.Equal(t, NoTextPlaceholder, o.Snapshot().Text)
	_, err := o.CommitCurrent(context.Background())
	require.ErrorIs(t, err, ErrNoText)
	assert.Empty(t, sink.texts)
}

func TestStaleExtractionDoesNotOverwriteNewGesture(t *testing.T) {
	renderer := &stubRenderer{text: "first page text", gate: make(chan struct{})}
	o := NewOverlay(renderer, &recordingSink{})
	o.SetMode(ModeArea)

	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 100, Y: 100})
	_, ok := o.End(context.Background())
	require.True(t, ok)
	firstGesture := o.Snapshot().Gesture

	// A new gesture starts while the first extraction is still outstanding.
	_, ok = o.Begin(areaPointer(10, 10), 2)
	require.True(t, ok)
	o.Update(Point{X: 20, Y: 40})

	close(renderer.gate)
	o.Wait()

	snap := o.Snapshot()
	assert.Equal(t, PhaseSelecting, snap.Phase)
	assert.NotEqual(t, firstGesture, snap.Gesture)
	assert.Empty(t, snap.Text)
	require.NotNil(t, snap.Rect)
	assert.Equal(t, 2, snap.Rect.PageNumber)
}

func TestStaleExtractionAfterCancelIsDropped(t *testing.T) {
	renderer := &stubRenderer{text: "text", gate: make(chan struct{})}
	o := NewOverlay(renderer, &recordingSink{})
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 100, Y: 100})
	o.End(context.Background())

	o.Cancel()
	close(renderer.gate)
	o.Wait()

	assert.Equal(t, PhaseIdle, o.Snapshot().Phase)
}

func TestNotifyRunsAfterExtraction(t *testing.T) {
	got := make(chan Snapshot, 1)
	o := NewOverlay(&stubRenderer{text: "hello world"}, &recordingSink{},
		WithNotify(func(s Snapshot) { got <- s }))
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 30, Y: 30})
	o.End(context.Background())

	select {
	case s := <-got:
		assert.Equal(t, PhaseCompleted, s.Phase)
		assert.Equal(t, "hello world", s.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("notify was not called")
	}
}

func TestEnd_CancelledRequestContextStillExtracts(t *testing.T) {
	o := NewOverlay(&stubRenderer{text: "survives"}, &recordingSink{})
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 30, Y: 30})

	ctx, cancel := context.WithCancel(context.Background())
	o.End(ctx)
	cancel()
	o.Wait()

	assert.Equal(t, "survives", o.Snapshot().Text)
}

func TestWithMinDrag(t *testing.T) {
	o := NewOverlay(&stubRenderer{text: "x"}, &recordingSink{}, WithMinDrag(50))
	o.SetMode(ModeArea)
	o.Begin(areaPointer(0, 0), 1)
	o.Update(Point{X: 40, Y: 40})
	_, ok := o.End(context.Background())
	assert.False(t, ok)
}

func TestConcurrentPointerEvents(t *testing.T) {
	o := NewOverlay(&stubRenderer{text: "concurrent"}, &recordingSink{})
	o.SetMode(ModeArea)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o.Begin(areaPointer(float64(i), float64(i)), 1)
			o.Update(Point{X: float64(i + 100), Y: float64(i + 100)})
			o.End(context.Background())
			_ = o.Snapshot()
		}(i)
	}
	wg.Wait()
	o.Wait()
	// Should not panic or race
}

func TestSnapshot_BoxIsNormalized(t *testing.T) {
	o := NewOverlay(&stubRenderer{text: "abc"}, &recordingSink{})
	o.SetMode(ModeArea)
	assert.Nil(t, o.Snapshot().Box)

	o.Begin(areaPointer(300, 90), 1)
	o.Update(Point{X: 100, Y: 40})

	snap := o.Snapshot()
	require.NotNil(t, snap.Box)
	assert.Equal(t, Box{Left: 100, Top: 40, Width: 200, Height: 50}, *snap.Box)
	o.Cancel()
}
