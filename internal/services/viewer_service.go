package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/models"
)

// Zoom limits.
const (
	MinScale  = 0.5
	MaxScale  = 2.5
	ScaleStep = 0.1
)

// ViewerConfig tunes the selection overlay of every viewer.
type ViewerConfig struct {
	Policy         selection.Policy
	MinDrag        float64
	ExtractTimeout time.Duration
	IdleTimeout    time.Duration
}

// ViewerState is what a client needs to redraw a viewer.
type ViewerState struct {
	ID         string             `json:"id"`
	DocumentID string             `json:"document_id"`
	FileName   string             `json:"file_name"`
	Page       int                `json:"page"`
	NumPages   int                `json:"num_pages"`
	Scale      float64            `json:"scale"`
	Selection  selection.Snapshot `json:"selection"`
}

type documentLookup interface {
	Get(ctx context.Context, userID, id string) (*models.Document, error)
}

type viewer struct {
	id      string
	userID  string
	doc     models.Document
	overlay *selection.Overlay

	mu       sync.Mutex
	page     int
	numPages int
	scale    float64
	lastUsed time.Time
	subs     map[chan ViewerState]struct{}
	closed   bool
}

// ViewerService keeps the open viewers in memory. A viewer belongs to the
// user that opened it; other users get ErrViewerNotFound.
type ViewerService struct {
	docs     documentLookup
	pages    core.PageSource
	contexts *ContextService
	cfg      ViewerConfig
	now      func() time.Time

	mu      sync.Mutex
	viewers map[string]*viewer
}

func NewViewerService(docs documentLookup, pages core.PageSource, contexts *ContextService, cfg ViewerConfig) *ViewerService {
	if cfg.Policy == (selection.Policy{}) {
		cfg.Policy = selection.DefaultPolicy
	}
	return &ViewerService{
		docs:     docs,
		pages:    pages,
		contexts: contexts,
		cfg:      cfg,
		now:      time.Now,
		viewers:  make(map[string]*viewer),
	}
}

// Open creates a viewer on the first page at scale 1.0 in text mode.
func (s *ViewerService) Open(ctx context.Context, userID, documentID string) (ViewerState, error) {
	doc, err := s.docs.Get(ctx, userID, documentID)
	if err != nil {
		return ViewerState{}, err
	}
	pd := s.pages.Open(doc)
	numPages, err := pd.PageCount(ctx)
	if err != nil {
		return ViewerState{}, fmt.Errorf("open viewer on %s: %w", documentID, err)
	}
	if numPages < 1 {
		numPages = 1
	}

	v := &viewer{
		id:       uuid.NewString(),
		userID:   userID,
		doc:      *doc,
		page:     1,
		numPages: numPages,
		scale:    1.0,
		lastUsed: s.now(),
		subs:     make(map[chan ViewerState]struct{}),
	}
	opts := []selection.Option{
		selection.WithPolicy(s.cfg.Policy),
		selection.WithNotify(func(selection.Snapshot) { v.publish() }),
	}
	if s.cfg.MinDrag > 0 {
		opts = append(opts, selection.WithMinDrag(s.cfg.MinDrag))
	}
	if s.cfg.ExtractTimeout > 0 {
		opts = append(opts, selection.WithExtractTimeout(s.cfg.ExtractTimeout))
	}
	v.overlay = selection.NewOverlay(pd, s.contexts.SinkFor(userID, doc.ID), opts...)

	s.mu.Lock()
	s.viewers[v.id] = v
	s.mu.Unlock()

	log.Printf("ViewerService: opened viewer %s on document %s (%d pages)", v.id, doc.ID, numPages)
	return v.state(), nil
}

func (s *ViewerService) lookup(userID, id string) (*viewer, error) {
	s.mu.Lock()
	v, ok := s.viewers[id]
	s.mu.Unlock()
	if !ok || v.userID != userID {
		return nil, ErrViewerNotFound
	}
	v.mu.Lock()
	v.lastUsed = s.now()
	v.mu.Unlock()
	return v, nil
}

// with looks up the viewer, applies fn and returns the resulting state.
func (s *ViewerService) with(userID, id string, fn func(v *viewer)) (ViewerState, error) {
	v, err := s.lookup(userID, id)
	if err != nil {
		return ViewerState{}, err
	}
	if fn != nil {
		fn(v)
	}
	return v.state(), nil
}

func (s *ViewerService) Get(userID, id string) (ViewerState, error) {
	return s.with(userID, id, nil)
}

// Close discards the viewer and its selection.
func (s *ViewerService) Close(userID, id string) error {
	v, err := s.lookup(userID, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.viewers, id)
	s.mu.Unlock()
	v.close()
	return nil
}

func (s *ViewerService) SetMode(userID, id string, mode selection.Mode) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) { v.overlay.SetMode(mode) })
}

// GoToPage moves to page n, clamped to 1..NumPages. An existing selection
// keeps the page it was drawn on.
func (s *ViewerService) GoToPage(userID, id string, n int) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) {
		v.mu.Lock()
		v.page = clampInt(n, 1, v.numPages)
		v.mu.Unlock()
	})
}

func (s *ViewerService) NextPage(userID, id string) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) {
		v.mu.Lock()
		v.page = clampInt(v.page+1, 1, v.numPages)
		v.mu.Unlock()
	})
}

func (s *ViewerService) PrevPage(userID, id string) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) {
		v.mu.Lock()
		v.page = clampInt(v.page-1, 1, v.numPages)
		v.mu.Unlock()
	})
}

// Zoom changes the scale by delta, rounded to ScaleStep and clamped to
// MinScale..MaxScale.
func (s *ViewerService) Zoom(userID, id string, delta float64) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) {
		v.mu.Lock()
		v.scale = clampScale(v.scale + delta)
		v.mu.Unlock()
	})
}

// SetScale sets an absolute scale with the same rounding as Zoom.
func (s *ViewerService) SetScale(userID, id string, scale float64) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) {
		v.mu.Lock()
		v.scale = clampScale(scale)
		v.mu.Unlock()
	})
}

// PointerDown may start a selection on the viewer's current page.
func (s *ViewerService) PointerDown(userID, id string, p selection.Pointer) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) {
		v.mu.Lock()
		page := v.page
		v.mu.Unlock()
		v.overlay.Begin(p, page)
	})
}

func (s *ViewerService) PointerMove(userID, id string, pt selection.Point) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) { v.overlay.Update(pt) })
}

// PointerUp ends the gesture. Extraction continues after ctx is done; its
// result reaches subscribers.
func (s *ViewerService) PointerUp(ctx context.Context, userID, id string) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) { v.overlay.End(ctx) })
}

func (s *ViewerService) CancelSelection(userID, id string) (ViewerState, error) {
	return s.with(userID, id, func(v *viewer) { v.overlay.Cancel() })
}

// CommitSelection adds the completed selection's text to the owner's context
// list and clears the selection. It returns the committed text.
func (s *ViewerService) CommitSelection(ctx context.Context, userID, id string) (ViewerState, string, error) {
	v, err := s.lookup(userID, id)
	if err != nil {
		return ViewerState{}, "", err
	}
	text, err := v.overlay.CommitCurrent(ctx)
	if err != nil {
		return v.state(), "", err
	}
	return v.state(), text, nil
}

// Subscribe returns a channel that receives the viewer state whenever a
// background extraction finishes. The channel is closed when the viewer is
// closed or evicted, or when cancel is called.
func (s *ViewerService) Subscribe(userID, id string) (<-chan ViewerState, func(), error) {
	v, err := s.lookup(userID, id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan ViewerState, 4)
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	v.subs[ch] = struct{}{}
	v.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, ok := v.subs[ch]; ok {
				delete(v.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

// EvictIdle closes viewers unused for longer than the idle timeout and
// reports how many were closed.
func (s *ViewerService) EvictIdle() int {
	if s.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	var stale []*viewer
	s.mu.Lock()
	for id, v := range s.viewers {
		v.mu.Lock()
		idle := v.lastUsed.Before(cutoff)
		v.mu.Unlock()
		if idle {
			delete(s.viewers, id)
			stale = append(stale, v)
		}
	}
	s.mu.Unlock()

	for _, v := range stale {
		log.Printf("ViewerService: evicting idle viewer %s", v.id)
		v.close()
	}
	return len(stale)
}

// Run evicts idle viewers until ctx is done.
func (s *ViewerService) Run(ctx context.Context) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	interval := max(s.cfg.IdleTimeout/4, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.EvictIdle()
		}
	}
}

// Shutdown closes every viewer and waits for their extractions.
func (s *ViewerService) Shutdown() {
	s.mu.Lock()
	all := make([]*viewer, 0, len(s.viewers))
	for id, v := range s.viewers {
		all = append(all, v)
		delete(s.viewers, id)
	}
	s.mu.Unlock()
	for _, v := range all {
		v.close()
		v.overlay.Wait()
	}
}

func (v *viewer) state() ViewerState {
	snap := v.overlay.Snapshot()
	v.mu.Lock()
	defer v.mu.Unlock()
	return ViewerState{
		ID:         v.id,
		DocumentID: v.doc.ID,
		FileName:   v.doc.FileName,
		Page:       v.page,
		NumPages:   v.numPages,
		Scale:      v.scale,
		Selection:  snap,
	}
}

// publish hands the current state to subscribers without blocking. A full
// subscriber loses its oldest pending state.
func (v *viewer) publish() {
	st := v.state()
	v.mu.Lock()
	defer v.mu.Unlock()
	for ch := range v.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (v *viewer) close() {
	v.overlay.Cancel()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	for ch := range v.subs {
		delete(v.subs, ch)
		close(ch)
	}
}

func clampInt(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

func clampScale(s float64) float64 {
	s = math.Round(s/ScaleStep) * ScaleStep
	s = math.Round(s*10) / 10
	return math.Max(MinScale, math.Min(s, MaxScale))
}
