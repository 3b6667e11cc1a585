package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/circleshare/circleshare/ai"
	"github.com/circleshare/circleshare/ai/retrieval"
	"github.com/circleshare/circleshare/server/auth"
	"github.com/circleshare/circleshare/store"
)

const testSecret = "test-secret"

type fakeSearcher struct {
	results   []*store.ItemWithScore
	err       error
	lastQuery *retrieval.SearchQuery
}

func (f *fakeSearcher) Search(ctx context.Context, userID int32, query *retrieval.SearchQuery) ([]*store.ItemWithScore, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// doAuthedJSON routes the request through a real echo router so path
// parameters and the auth middleware behave as in production.
func doAuthedJSON(t *testing.T, handler echo.HandlerFunc, method, pattern, path, body string, userID int32) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Add(method, pattern, handler, auth.Middleware(testSecret))

	token, err := auth.GenerateAccessToken(userID, testSecret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)
	return rec
}

func TestSearchHandlerEnrichesResults(t *testing.T) {
	driver := newFakeDriver()
	st, p := newTestService(driver)
	p.ImageSigningSecret = "img-secret"

	driver.items[1] = &store.Item{
		ID: 1, UID: "tent-uid", OwnerID: 10, Name: "Camping Tent",
		ImageRef: "https://cdn.example.com/tent.jpg", CreatedTs: 100, CircleIDs: []int32{5},
	}
	driver.items[2] = &store.Item{
		ID: 2, UID: "bag-uid", OwnerID: 11, Name: "Sleeping Bag", CreatedTs: 200, CircleIDs: []int32{5},
	}
	driver.owners[10] = &store.Owner{ID: 10, Username: "alice", Nickname: "Alice"}
	driver.owners[11] = &store.Owner{ID: 11, Username: "bob"}
	driver.circles[5] = &store.Circle{ID: 5, Name: "Garden Club"}

	engine := &fakeSearcher{results: []*store.ItemWithScore{
		{Item: driver.items[1], Score: 0.91},
		{Item: driver.items[2], Score: 0.72},
	}}
	svc := &SearchService{Store: st, Profile: p, engine: engine}

	rec := doAuthedJSON(t, svc.Search, http.MethodPost, "/api/v1/search", "/api/v1/search",
		`{"query": "camping gear", "circleIds": ["5"], "limit": 10}`, 11)
	require.Equal(t, http.StatusOK, rec.Code)

	response := &SearchResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
	require.Len(t, response.Results, 2)

	first := response.Results[0]
	require.Equal(t, "tent-uid", first.UID)
	require.InDelta(t, 0.91, first.Score, 1e-6)
	require.False(t, first.IsOwner)
	require.Equal(t, "alice", first.Owner.Username)
	require.Contains(t, first.ImageURL, "signature=")
	require.Len(t, first.Circles, 1)
	require.Equal(t, "Garden Club", first.Circles[0].Name)

	second := response.Results[1]
	require.True(t, second.IsOwner, "caller owns the sleeping bag")
	require.Empty(t, second.ImageURL)

	require.Equal(t, "camping gear", engine.lastQuery.Text)
	require.Equal(t, []int32{5}, engine.lastQuery.CircleIDs)
	require.Equal(t, 10, engine.lastQuery.Limit)
}

func TestSearchHandlerOmitsVanishedItems(t *testing.T) {
	driver := newFakeDriver()
	st, p := newTestService(driver)

	driver.items[1] = &store.Item{ID: 1, UID: "tent-uid", OwnerID: 10, Name: "Camping Tent"}
	driver.items[3] = &store.Item{ID: 3, UID: "orphan-uid", OwnerID: 12, Name: "Orphaned Kayak"}
	driver.owners[10] = &store.Owner{ID: 10, Username: "alice"}

	engine := &fakeSearcher{results: []*store.ItemWithScore{
		{Item: driver.items[1], Score: 0.9},
		// Deleted between ranking and enrichment.
		{Item: &store.Item{ID: 99, UID: "gone", OwnerID: 10}, Score: 0.8},
		// Owner row missing.
		{Item: driver.items[3], Score: 0.7},
	}}
	svc := &SearchService{Store: st, Profile: p, engine: engine}

	rec := doAuthedJSON(t, svc.Search, http.MethodPost, "/api/v1/search", "/api/v1/search", `{"query": "tent"}`, 11)
	require.Equal(t, http.StatusOK, rec.Code)

	response := &SearchResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), response))
	require.Len(t, response.Results, 1)
	require.Equal(t, "tent-uid", response.Results[0].UID)
}

func TestSearchHandlerErrorMapping(t *testing.T) {
	driver := newFakeDriver()
	st, p := newTestService(driver)

	t.Run("invalid query is a 400", func(t *testing.T) {
		svc := &SearchService{Store: st, Profile: p, engine: &fakeSearcher{
			err: &retrieval.InvalidQueryError{Reason: "at least one of text or image is required"},
		}}
		rec := doAuthedJSON(t, svc.Search, http.MethodPost, "/api/v1/search", "/api/v1/search", `{}`, 1)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-numeric circle id is a 400 before the engine runs", func(t *testing.T) {
		engine := &fakeSearcher{}
		svc := &SearchService{Store: st, Profile: p, engine: engine}
		rec := doAuthedJSON(t, svc.Search, http.MethodPost, "/api/v1/search", "/api/v1/search",
			`{"query": "tent", "circleIds": ["garden-club"]}`, 1)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Nil(t, engine.lastQuery)
	})

	t.Run("embedding failure is a 500 without provider details", func(t *testing.T) {
		svc := &SearchService{Store: st, Profile: p, engine: &fakeSearcher{
			err: ai.NewEmbeddingError("provider request failed", errors.New("api key rejected by upstream")),
		}}
		rec := doAuthedJSON(t, svc.Search, http.MethodPost, "/api/v1/search", "/api/v1/search", `{"query": "tent"}`, 1)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotContains(t, rec.Body.String(), "api key")
		require.Contains(t, rec.Body.String(), "failed to process search query")
	})

	t.Run("store failure is a 500", func(t *testing.T) {
		svc := &SearchService{Store: st, Profile: p, engine: &fakeSearcher{
			err: errors.New("pq: connection reset"),
		}}
		rec := doAuthedJSON(t, svc.Search, http.MethodPost, "/api/v1/search", "/api/v1/search", `{"query": "tent"}`, 1)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotContains(t, rec.Body.String(), "pq:")
	})

	t.Run("engine not configured is a 503", func(t *testing.T) {
		svc := NewSearchService(st, p, nil, nil)
		rec := doAuthedJSON(t, svc.Search, http.MethodPost, "/api/v1/search", "/api/v1/search", `{"query": "tent"}`, 1)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("missing token is a 401", func(t *testing.T) {
		svc := &SearchService{Store: st, Profile: p, engine: &fakeSearcher{}}
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query": "tent"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := auth.Middleware(testSecret)(svc.Search)(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
