package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/strixlabs/strix-anomaly/internal/cache"
	_ "github.com/strixlabs/strix-anomaly/internal/metrics" // registers the service collectors behind /metrics
	"github.com/strixlabs/strix-anomaly/internal/models"
	"github.com/strixlabs/strix-anomaly/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	threats []models.ThreatRecord
	listErr error
	gotLim  int
}

func (r *fakeRepo) SaveThreats(context.Context, []models.ThreatRecord) error { return nil }

func (r *fakeRepo) GetThreatByID(context.Context, string) (*models.ThreatRecord, error) {
	return nil, nil
}

func (r *fakeRepo) ListThreats(_ context.Context, limit int) ([]models.ThreatRecord, error) {
	r.gotLim = limit
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.threats, nil
}

func (r *fakeRepo) Close() error { return nil }

func seededStore() *cache.Store {
	store := cache.NewStore()
	store.Publish(
		[]models.AnomalyResult{
			{Key: "eve", Score: 4.2, IsAnomaly: true},
			{Key: "bob", Score: 0.3, IsAnomaly: false},
		},
		map[string]models.FeatureRow{
			"eve": {Key: "eve", Features: []float64{50, 6, 6, 6, 9, 9}},
		},
		[]float64{10, 0, 0, 0, 2, 1},
	)
	return store
}

func openRouter(store *cache.Store, repo *fakeRepo) http.Handler {
	if repo == nil {
		return server.NewRouter(server.NewHandler(store, nil, nil), nil)
	}
	return server.NewRouter(server.NewHandler(store, repo, nil), nil)
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := get(t, openRouter(cache.NewStore(), nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsExposed(t *testing.T) {
	rec := get(t, openRouter(cache.NewStore(), nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "strix_anomaly_")
}

func TestGetSnapshot(t *testing.T) {
	rec := get(t, openRouter(seededStore(), nil), "/api/v1/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap cache.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "eve", snap.Results[0].Key)
	assert.Equal(t, []float64{10, 0, 0, 0, 2, 1}, snap.BaselineMean)
	require.Contains(t, snap.Rows, "eve")
	assert.Equal(t, []float64{50, 6, 6, 6, 9, 9}, snap.Rows["eve"].Features)
}

func TestGetSnapshotMethodNotAllowed(t *testing.T) {
	router := openRouter(seededStore(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListAnomalies(t *testing.T) {
	router := openRouter(seededStore(), nil)

	t.Run("all results", func(t *testing.T) {
		rec := get(t, router, "/api/v1/anomalies")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Results []models.AnomalyResult `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Results, 2)
	})

	t.Run("flagged only", func(t *testing.T) {
		rec := get(t, router, "/api/v1/anomalies?flagged=true")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Results []models.AnomalyResult `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Results, 1)
		assert.Equal(t, "eve", body.Results[0].Key)
	})
}

func TestListThreats(t *testing.T) {
	repo := &fakeRepo{threats: []models.ThreatRecord{
		{ID: "t1", EntityKey: "eve", Severity: models.SeverityHigh},
	}}
	router := openRouter(seededStore(), repo)

	t.Run("default limit", func(t *testing.T) {
		rec := get(t, router, "/api/v1/threats")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 100, repo.gotLim)

		var body struct {
			Threats []models.ThreatRecord `json:"threats"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Threats, 1)
		assert.Equal(t, "eve", body.Threats[0].EntityKey)
	})

	t.Run("explicit limit", func(t *testing.T) {
		rec := get(t, router, "/api/v1/threats?limit=5")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, repo.gotLim)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := get(t, router, "/api/v1/threats?limit=zero")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-positive limit", func(t *testing.T) {
		rec := get(t, router, "/api/v1/threats?limit=-1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("repo failure", func(t *testing.T) {
		broken := &fakeRepo{listErr: errors.New("connection refused")}
		rec := get(t, openRouter(seededStore(), broken), "/api/v1/threats")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("persistence disabled", func(t *testing.T) {
		rec := get(t, openRouter(seededStore(), nil), "/api/v1/threats")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod) string {
	t.Helper()
	claims := server.Claims{
		UserID: "analyst-1",
		Roles:  []string{"viewer"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	verifier := server.NewTokenVerifier(secret)
	router := server.NewRouter(server.NewHandler(seededStore(), nil, nil), verifier)

	t.Run("missing token", func(t *testing.T) {
		rec := get(t, router, "/api/v1/snapshot")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", jwt.SigningMethodHS256))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, secret, jwt.SigningMethodHS256))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := server.Claims{
			UserID: "analyst-1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health stays open", func(t *testing.T) {
		rec := get(t, router, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("nil verifier leaves the api open", func(t *testing.T) {
		rec := get(t, openRouter(seededStore(), nil), "/api/v1/snapshot")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestVerify(t *testing.T) {
	verifier := server.NewTokenVerifier("secret")

	t.Run("round trip", func(t *testing.T) {
		claims, err := verifier.Verify(signToken(t, "secret", jwt.SigningMethodHS256))
		require.NoError(t, err)
		assert.Equal(t, "analyst-1", claims.UserID)
		assert.Equal(t, []string{"viewer"}, claims.Roles)
	})

	t.Run("garbage input", func(t *testing.T) {
		_, err := verifier.Verify("not-a-jwt")
		assert.Error(t, err)
	})
}
