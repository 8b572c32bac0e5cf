package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Excerpta/internal/config"
	"github.com/markdave123-py/Excerpta/internal/core/coretest"
	"github.com/markdave123-py/Excerpta/internal/core/ingestion_engine"
	"github.com/markdave123-py/Excerpta/internal/models"
	"github.com/markdave123-py/Excerpta/internal/services"
)

func testRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Port:        "0",
		JWTSecret:   "router-secret",
		CORSOrigins: []string{"http://localhost:5173"},

		ChatRatePerMinute: 1,
		ChatRateBurst:     2,
	}
	db := coretest.NewMemDB()
	pages := &coretest.StaticPages{Pages: []string{"Mitochondria produce ATP."}}
	emb := &coretest.FakeEmbedder{}
	ing := ingestion_engine.NewDocumentIngestor(db, pages, emb, nil)
	docs := services.NewDocumentService(db, coretest.NewMemObjects(), pages, ing, "bucket")
	contexts := services.NewContextService(db)
	viewers := services.NewViewerService(docs, pages, contexts, services.ViewerConfig{})
	t.Cleanup(viewers.Shutdown)
	chat := services.NewChatService(nil, db, docs, contexts, emb, &coretest.FakeLLM{Reply: "ok"})

	require.NoError(t, db.CreateDocument(context.Background(), &models.Document{ID: "d1", UserID: "u1", FileName: "bio.pdf"}))

	return NewRouter(cfg, Handlers{Documents: docs, Contexts: contexts, Viewers: viewers, Chat: chat}), cfg
}

func bearer(t *testing.T, secret, user string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRouter_Health(t *testing.T) {
	r, _ := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RequiresToken(t *testing.T) {
	r, cfg := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Authorization", bearer(t, cfg.JWTSecret, "u1"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"tutor"`)
}

func TestRouter_OpenViewer(t *testing.T) {
	r, cfg := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/viewers", strings.NewReader(`{"document_id":"d1"}`))
	req.Header.Set("Authorization", bearer(t, cfg.JWTSecret, "u1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"num_pages":1`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/context", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ChatRateLimited(t *testing.T) {
	r, cfg := testRouter(t)

	post := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"what is ATP?"}`))
		req.Header.Set("Authorization", bearer(t, cfg.JWTSecret, user))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post("u1"))
	assert.Equal(t, http.StatusOK, post("u1"))
	assert.Equal(t, http.StatusTooManyRequests, post("u1"))
	assert.Equal(t, http.StatusOK, post("u2"))
}
