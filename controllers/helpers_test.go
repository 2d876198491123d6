package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/models"
	"github.com/opsdash/commesse-api/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// mockAuthMiddleware sets up the context the way EnsureValidToken does
// once a token has been validated and its name resolved
func mockAuthMiddleware(actor string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", "auth0|"+actor)
		c.Set("actor", actor)
		c.Request = c.Request.WithContext(services.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// recordingNotifier keeps every dispatched notification
type recordingNotifier struct {
	sent chan services.Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(chan services.Notification, 16)}
}

func (n *recordingNotifier) Dispatch(ctx context.Context, notification services.Notification) {
	n.sent <- notification
}

func (n *recordingNotifier) next(t *testing.T) services.Notification {
	t.Helper()
	select {
	case got := <-n.sent:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("no notification dispatched")
		return services.Notification{}
	}
}

// fixtureOrders returns two orders:
// order 1 (medium) with production, shipping and installation phases, none completed,
// order 2 (urgent) with a single completed repair phase.
func fixtureOrders() []models.Order {
	rossi := uint(1)
	bianchi := uint(2)
	return []models.Order{
		{
			ID:         1,
			Number:     "C-2024-001",
			Title:      "Stufa a pellet",
			Type:       models.OrderTypeSupply,
			Priority:   models.PriorityMedium,
			CustomerID: &rossi,
			Customer:   &models.Customer{ID: rossi, Name: "Rossi Impianti"},
			Phases: []models.Phase{
				{ID: 11, OrderID: 1, PhaseType: models.PhaseProduction, PhaseOrder: 1, Status: models.StatusDaFare},
				{ID: 12, OrderID: 1, PhaseType: models.PhaseShipping, PhaseOrder: 2, Status: models.StatusDaPreparare},
				{ID: 13, OrderID: 1, PhaseType: models.PhaseInstallation, PhaseOrder: 3, Status: models.StatusDaProgrammare},
			},
		},
		{
			ID:         2,
			Number:     "C-2024-002",
			Title:      "Caldaia",
			Type:       models.OrderTypeIntervention,
			Priority:   models.PriorityUrgent,
			CustomerID: &bianchi,
			Customer:   &models.Customer{ID: bianchi, Name: "Bianchi Srl"},
			Phases: []models.Phase{
				{ID: 21, OrderID: 2, PhaseType: models.PhaseRepair, PhaseOrder: 1, Status: models.StatusCompletata},
			},
		},
	}
}

// setupStore registers a pipeline store over a mock repository seeded with orders
func setupStore(t *testing.T, notifier services.Notifier, orders ...models.Order) (*services.MockOrderRepository, *services.PipelineStore) {
	t.Helper()

	repo := services.NewMockOrderRepository(orders...)
	store := services.NewPipelineStore(repo, notifier, zap.NewNop())
	services.SetPipelineStore(store)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		store.Close(ctx)
		services.SetPipelineStore(nil)
	})
	return repo, store
}

func newOrderRouter(writeGuard gin.HandlerFunc) *gin.Engine {
	router := setupTestRouter()
	RegisterRoutes(router.Group("/api/v1"), mockAuthMiddleware("Mario Rossi"), writeGuard)
	return router
}

func performRequest(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewBuffer(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "body: %s", w.Body.String())
	return response
}

func errorCode(response map[string]interface{}) string {
	errObj, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
