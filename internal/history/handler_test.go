package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdqueue/backend/internal/middleware"
	"github.com/crowdqueue/backend/internal/models"
)

type fakeStore struct {
	items []models.PlayedTrack
	total int
}

func (f *fakeStore) ListBySession(_ context.Context, _ uuid.UUID, limit int) ([]models.PlayedTrack, error) {
	if limit > 0 && limit < len(f.items) {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func (f *fakeStore) CountBySession(_ context.Context, _ uuid.UUID) (int, error) {
	return f.total, nil
}

type fakeSessions struct {
	session *models.Session
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, nil
	}
	return f.session, nil
}

func historyRouter(h *Handler, subject uuid.UUID, role string, scope *uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/sessions/:id/history", func(c *gin.Context) {
		c.Set(middleware.ContextSubjectID, subject)
		c.Set(middleware.ContextRole, role)
		if scope != nil {
			c.Set(middleware.ContextSessionID, *scope)
		}
		h.ListBySession(c)
	})
	return r
}

func TestListBySessionIncludesTotal(t *testing.T) {
	sessionID := uuid.New()
	adminID := uuid.New()
	store := &fakeStore{
		items: []models.PlayedTrack{
			{ID: uuid.New(), SessionID: sessionID, Title: "one", PlayedAt: time.Now()},
			{ID: uuid.New(), SessionID: sessionID, Title: "two", PlayedAt: time.Now()},
		},
		total: 7,
	}
	h := NewHandler(store, &fakeSessions{session: &models.Session{ID: sessionID, AdminID: adminID}}, nil)
	r := historyRouter(h, adminID, "admin", nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID.String()+"/history?limit=2", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool         `json:"success"`
		Data    ListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data.Items, 2)
	assert.Equal(t, 7, body.Data.Total)
}

func TestListBySessionForbidsOutsiders(t *testing.T) {
	sessionID := uuid.New()
	h := NewHandler(&fakeStore{}, &fakeSessions{session: &models.Session{ID: sessionID, AdminID: uuid.New()}}, nil)

	otherScope := uuid.New()
	r := historyRouter(h, uuid.New(), "guest", &otherScope)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID.String()+"/history", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListBySessionUnknownSession(t *testing.T) {
	h := NewHandler(&fakeStore{}, &fakeSessions{}, nil)
	r := historyRouter(h, uuid.New(), "admin", nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+uuid.New().String()+"/history", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
