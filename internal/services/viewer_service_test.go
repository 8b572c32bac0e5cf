package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Excerpta/internal/core/selection"
)

func newViewers(t *testing.T) (*fixture, *ViewerService) {
	t.Helper()
	f := newFixture(t)
	f.seedDoc(t, "d1", "u1")
	vs := NewViewerService(f.docs, f.pages, f.contexts, ViewerConfig{
		ExtractTimeout: time.Second,
		IdleTimeout:    time.Hour,
	})
	t.Cleanup(vs.Shutdown)
	return f, vs
}

func awaitState(t *testing.T, ch <-chan ViewerState) ViewerState {
	t.Helper()
	select {
	case st, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("no state published")
		return ViewerState{}
	}
}

func TestViewer_OpenDefaults(t *testing.T) {
	_, vs := newViewers(t)
	st, err := vs.Open(context.Background(), "u1", "d1")
	require.NoError(t, err)

	assert.NotEmpty(t, st.ID)
	assert.Equal(t, 1, st.Page)
	assert.Equal(t, 3, st.NumPages)
	assert.Equal(t, 1.0, st.Scale)
	assert.Equal(t, selection.ModeText, st.Selection.Mode)
	assert.Equal(t, selection.PhaseIdle, st.Selection.Phase)
}

func TestViewer_OwnershipAndMissing(t *testing.T) {
	_, vs := newViewers(t)
	_, err := vs.Open(context.Background(), "u2", "d1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	st, err := vs.Open(context.Background(), "u1", "d1")
	require.NoError(t, err)
	_, err = vs.Get("u2", st.ID)
	assert.ErrorIs(t, err, ErrViewerNotFound)
	_, err = vs.Get("u1", "no-such-viewer")
	assert.ErrorIs(t, err, ErrViewerNotFound)
}

func TestViewer_PagingClamps(t *testing.T) {
	_, vs := newViewers(t)
	st, _ := vs.Open(context.Background(), "u1", "d1")

	got, err := vs.PrevPage("u1", st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Page)

	got, _ = vs.GoToPage("u1", st.ID, 99)
	assert.Equal(t, 3, got.Page)
	got, _ = vs.NextPage("u1", st.ID)
	assert.Equal(t, 3, got.Page)
	got, _ = vs.GoToPage("u1", st.ID, 0)
	assert.Equal(t, 1, got.Page)
	got, _ = vs.NextPage("u1", st.ID)
	assert.Equal(t, 2, got.Page)
}

func TestViewer_ZoomClampsAndRounds(t *testing.T) {
	_, vs := newViewers(t)
	st, _ := vs.Open(context.Background(), "u1", "d1")

	got, _ := vs.Zoom("u1", st.ID, ScaleStep)
	assert.Equal(t, 1.1, got.Scale)

	for k := 0; k < 30; k++ {
		got, _ = vs.Zoom("u1", st.ID, ScaleStep)
	}
	assert.Equal(t, MaxScale, got.Scale)

	got, _ = vs.SetScale("u1", st.ID, 0.1)
	assert.Equal(t, MinScale, got.Scale)

	got, _ = vs.SetScale("u1", st.ID, 1.34)
	assert.Equal(t, 1.3, got.Scale)
}

func TestViewer_AreaSelectionCommitsToContext(t *testing.T) {
	f, vs := newViewers(t)
	ctx := context.Background()
	st, _ := vs.Open(ctx, "u1", "d1")
	updates, cancel, err := vs.Subscribe("u1", st.ID)
	require.NoError(t, err)
	defer cancel()

	_, err = vs.SetMode("u1", st.ID, selection.ModeArea)
	require.NoError(t, err)
	_, _ = vs.GoToPage("u1", st.ID, 2)

	got, _ := vs.PointerDown("u1", st.ID, selection.Pointer{Point: selection.Point{X: 50, Y: 50}})
	assert.Equal(t, selection.PhaseSelecting, got.Selection.Phase)
	_, _ = vs.PointerMove("u1", st.ID, selection.Point{X: 250, Y: 300})
	got, err = vs.PointerUp(ctx, "u1", st.ID)
	require.NoError(t, err)
	require.Equal(t, selection.PhaseCompleted, got.Selection.Phase)
	require.NotNil(t, got.Selection.Rect)
	assert.Equal(t, 2, got.Selection.Rect.PageNumber)

	done := awaitState(t, updates)
	assert.False(t, done.Selection.Extracting)
	assert.Equal(t, "Derivatives measure how a function changes as its input changes.", done.Selection.Text)

	after, text, err := vs.CommitSelection(ctx, "u1", st.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Selection.Text, text)
	assert.Equal(t, selection.PhaseIdle, after.Selection.Phase)

	list, _ := f.contexts.List(ctx, "u1")
	require.Len(t, list, 1)
	assert.Equal(t, text, list[0].Text)
	assert.Equal(t, "d1", list[0].DocumentID)
}

func TestViewer_TextModeNeedsModifier(t *testing.T) {
	_, vs := newViewers(t)
	st, _ := vs.Open(context.Background(), "u1", "d1")

	got, _ := vs.PointerDown("u1", st.ID, selection.Pointer{Point: selection.Point{X: 5, Y: 5}})
	assert.Equal(t, selection.PhaseIdle, got.Selection.Phase)

	got, _ = vs.PointerDown("u1", st.ID, selection.Pointer{Point: selection.Point{X: 5, Y: 5}, Modifier: true})
	assert.Equal(t, selection.PhaseSelecting, got.Selection.Phase)
}

func TestViewer_ClickIsDiscardedAndCancelClears(t *testing.T) {
	f, vs := newViewers(t)
	ctx := context.Background()
	st, _ := vs.Open(ctx, "u1", "d1")
	_, _ = vs.SetMode("u1", st.ID, selection.ModeArea)

	_, _ = vs.PointerDown("u1", st.ID, selection.Pointer{Point: selection.Point{X: 10, Y: 10}})
	got, _ := vs.PointerUp(ctx, "u1", st.ID)
	assert.Equal(t, selection.PhaseIdle, got.Selection.Phase)

	_, _ = vs.PointerDown("u1", st.ID, selection.Pointer{Point: selection.Point{X: 10, Y: 10}})
	_, _ = vs.PointerMove("u1", st.ID, selection.Point{X: 200, Y: 200})
	_, _ = vs.PointerUp(ctx, "u1", st.ID)
	got, _ = vs.CancelSelection("u1", st.ID)
	assert.Equal(t, selection.PhaseIdle, got.Selection.Phase)
	assert.Nil(t, got.Selection.Rect)

	_, _, err := vs.CommitSelection(ctx, "u1", st.ID)
	assert.ErrorIs(t, err, selection.ErrNothingToCommit)
	list, _ := f.contexts.List(ctx, "u1")
	assert.Empty(t, list)
}

func TestViewer_CloseEndsSubscriptions(t *testing.T) {
	_, vs := newViewers(t)
	st, _ := vs.Open(context.Background(), "u1", "d1")
	updates, _, err := vs.Subscribe("u1", st.ID)
	require.NoError(t, err)

	require.NoError(t, vs.Close("u1", st.ID))
	_, ok := <-updates
	assert.False(t, ok)

	_, err = vs.Get("u1", st.ID)
	assert.ErrorIs(t, err, ErrViewerNotFound)
	assert.ErrorIs(t, vs.Close("u1", st.ID), ErrViewerNotFound)
}

func TestViewer_EvictIdle(t *testing.T) {
	_, vs := newViewers(t)
	clock := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	vs.now = func() time.Time { return clock }

	stale, _ := vs.Open(context.Background(), "u1", "d1")
	fresh, _ := vs.Open(context.Background(), "u1", "d1")

	clock = clock.Add(50 * time.Minute)
	_, _ = vs.Get("u1", fresh.ID)
	clock = clock.Add(20 * time.Minute)

	assert.Equal(t, 1, vs.EvictIdle())
	_, err := vs.Get("u1", stale.ID)
	assert.ErrorIs(t, err, ErrViewerNotFound)
	_, err = vs.Get("u1", fresh.ID)
	assert.NoError(t, err)
}
