package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/config"
	"github.com/opsdash/commesse-api/middleware"
	"github.com/opsdash/commesse-api/models"
	"github.com/opsdash/commesse-api/services"
	"github.com/opsdash/commesse-api/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		GoEnv:              "test",
		DatabaseDriver:     "sqlite",
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}
}

// setupRouter creates the full router with anonymous auth and no backing store
func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return newRouter(testConfig(), zap.NewNop(), prometheus.NewRegistry(), middleware.AnonymousActor(), nil)
}

// setupAppRouter wires a sqlite database, the pipeline store and the
// cascade deleter behind the full router
func setupAppRouter(t *testing.T, notifier services.Notifier) (*gin.Engine, *services.PipelineStore) {
	t.Helper()

	db := testutil.NewTestDB(t)
	config.SetDB(db)

	registry := prometheus.NewRegistry()
	metrics := services.NewMetrics(registry)
	repo := services.NewGormOrderRepository(db)
	store := services.NewPipelineStore(repo, notifier, zap.NewNop(), services.WithMetrics(metrics))
	services.SetPipelineStore(store)
	services.SetCascadeDeleter(services.NewCascadeDeleter(repo, zap.NewNop(),
		services.WithTransaction(true),
		services.WithEvictor(store),
		services.WithDeletionMetrics(metrics)))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		store.Close(ctx)
		services.SetPipelineStore(nil)
		services.SetCascadeDeleter(nil)
	})

	gin.SetMode(gin.TestMode)
	return newRouter(testConfig(), zap.NewNop(), registry, middleware.AnonymousActor(), nil), store
}

func doJSON(router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

type channelNotifier chan services.Notification

func (n channelNotifier) Dispatch(ctx context.Context, notification services.Notification) {
	n <- notification
}

// TestRouting checks the mounted paths and methods of the full router
func TestRouting(t *testing.T) {
	router := setupRouter()

	tests := []struct {
		name           string
		method         string
		path           string
		body           interface{}
		expectedStatus int
		expectedCode   string
	}{
		{"Health", http.MethodGet, "/api/v1/health", nil, http.StatusOK, ""},
		{"Health is read only", http.MethodPost, "/api/v1/health", nil, http.StatusNotFound, ""},
		{"Version prefix is required", http.MethodGet, "/health", nil, http.StatusNotFound, ""},
		{"Phase status takes PUT only", http.MethodGet, "/api/v1/phases/1/status", nil, http.StatusNotFound, ""},
		{"Phase id must be numeric", http.MethodPut, "/api/v1/phases/abc/status", gin.H{"status": "pronto"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"Phase status is required", http.MethodPut, "/api/v1/phases/1/status", gin.H{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Schedule date is required", http.MethodPut, "/api/v1/phases/1/schedule", gin.H{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Priority outside the vocabulary", http.MethodPut, "/api/v1/orders/1/priority", gin.H{"priority": "asap"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := doJSON(router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, false, response["success"])
				assert.Equal(t, tt.expectedCode, response["error"].(map[string]interface{})["code"])
			}
		})
	}
}

// TestPhaseLifecycleIntegration schedules an unlocked shipping phase and
// then ships it, all through HTTP against a real database
func TestPhaseLifecycleIntegration(t *testing.T) {
	notifications := make(channelNotifier, 8)
	router, _ := setupAppRouter(t, notifications)
	order := testutil.SeedOrder(t, config.GetDB(), "C-2025-100", "Stufa a legna", "Ferrari Srl", models.PriorityMedium,
		testutil.PhaseSeed{Type: models.PhaseProduction, Status: models.StatusPronto},
		testutil.PhaseSeed{Type: models.PhaseShipping, Status: models.StatusDaPreparare},
	)
	shipping := order.Phases[1]

	w, response := doJSON(router, http.MethodPut, "/api/v1/phases/"+itoa(shipping.ID)+"/schedule", gin.H{"date": "2025-06-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, response["changed"].(bool))
	n := <-notifications
	assert.Equal(t, services.KindPhaseScheduled, n.Kind)
	assert.Equal(t, "Ferrari Srl", n.Customer)

	w, response = doJSON(router, http.MethodPut, "/api/v1/phases/"+itoa(shipping.ID)+"/status", gin.H{"status": models.StatusSpedito})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	phases := response["data"].(map[string]interface{})["phases"].([]interface{})
	shipped := phases[1].(map[string]interface{})
	assert.Equal(t, models.StatusSpedito, shipped["status"])
	assert.NotNil(t, shipped["completed_at"])
	assert.Equal(t, services.KindPhaseStatusChanged, (<-notifications).Kind)

	var stored models.Phase
	require.NoError(t, config.GetDB().First(&stored, shipping.ID).Error)
	assert.Equal(t, models.StatusSpedito, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.ScheduledDate)
	assert.Equal(t, "2025-06-01", stored.ScheduledDate.Format("2006-01-02"))

	// the order is now completed
	_, response = doJSON(router, http.MethodGet, "/api/v1/orders?status=completed", nil)
	assert.Equal(t, float64(1), response["count"])
}

// TestDeleteOrderIntegration removes an order with its dependents and checks
// the listing no longer shows it
func TestDeleteOrderIntegration(t *testing.T) {
	router, _ := setupAppRouter(t, nil)
	db := config.GetDB()
	doomed := testutil.SeedOrder(t, db, "C-2025-200", "Camino", "", models.PriorityLow,
		testutil.PhaseSeed{Type: models.PhaseProduction, Status: models.StatusDaFare})
	testutil.SeedOrder(t, db, "C-2025-201", "Caldaia", "", models.PriorityHigh)
	require.NoError(t, db.Create(&models.Communication{OrderID: doomed.ID, Author: "Anna", Text: "nota"}).Error)

	_, response := doJSON(router, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, float64(2), response["count"])

	w, _ := doJSON(router, http.MethodDelete, "/api/v1/orders/"+itoa(doomed.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, response = doJSON(router, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, float64(1), response["count"])

	var phases, communications int64
	db.Model(&models.Phase{}).Where("order_id = ?", doomed.ID).Count(&phases)
	db.Model(&models.Communication{}).Where("order_id = ?", doomed.ID).Count(&communications)
	assert.Zero(t, phases)
	assert.Zero(t, communications)

	w, _ = doJSON(router, http.MethodDelete, "/api/v1/orders/"+itoa(doomed.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestDatabaseStatusIntegration lists the migrated tables
func TestDatabaseStatusIntegration(t *testing.T) {
	router, _ := setupAppRouter(t, nil)

	w, response := doJSON(router, http.MethodGet, "/api/v1/database/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, response["tables"], "commesse")
	assert.Contains(t, response["tables"], "commessa_fasi")
}

// TestMetricsEndpoint exposes the mutation counters
func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupAppRouter(t, nil)
	order := testutil.SeedOrder(t, config.GetDB(), "C-2025-300", "Stufa", "", models.PriorityLow)

	w, _ := doJSON(router, http.MethodPut, "/api/v1/orders/"+itoa(order.ID)+"/priority", gin.H{"priority": "high"})
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "commesse_mutations_total")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
