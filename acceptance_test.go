package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opsdash/commesse-api/config"
	"github.com/opsdash/commesse-api/models"
	"github.com/opsdash/commesse-api/services"
	"github.com/opsdash/commesse-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// call sends a JSON request to a running test server the way the office client does
func call(t *testing.T, server *httptest.Server, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func listedNumbers(t *testing.T, response map[string]interface{}) []string {
	t.Helper()

	data, ok := response["data"].([]interface{})
	require.True(t, ok, "listing should carry a data array")
	numbers := make([]string, len(data))
	for i, item := range data {
		numbers[i] = item.(map[string]interface{})["number"].(string)
	}
	return numbers
}

// TestOfficeWorkflowAcceptance drives a running server through a working day:
// triage the board, escalate an order, hit a locked phase, alert the field
// team and export the board.
func TestOfficeWorkflowAcceptance(t *testing.T) {
	notifications := make(channelNotifier, 8)
	router, _ := setupAppRouter(t, notifications)
	db := config.GetDB()

	stove := testutil.SeedOrder(t, db, "C-2025-401", "Stufa a pellet", "Rossi Impianti", models.PriorityMedium,
		testutil.PhaseSeed{Type: models.PhaseProduction, Status: models.StatusDaFare},
		testutil.PhaseSeed{Type: models.PhaseShipping, Status: models.StatusDaPreparare},
	)
	boiler := testutil.SeedOrder(t, db, "C-2025-402", "Caldaia", "Bianchi Srl", models.PriorityLow,
		testutil.PhaseSeed{Type: models.PhaseRepair, Status: models.StatusDaProgrammare},
	)

	server := httptest.NewServer(router)
	defer server.Close()

	resp, response := call(t, server, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Commesse API is running", response["message"])

	_, response = call(t, server, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, []string{"C-2025-401", "C-2025-402"}, listedNumbers(t, response))

	// escalating the boiler moves it to the top of the board
	resp, response = call(t, server, http.MethodPut, "/api/v1/orders/"+itoa(boiler.ID)+"/priority",
		map[string]string{"priority": "urgent"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, response["changed"])
	assert.Equal(t, services.KindPriorityChanged, (<-notifications).Kind)

	_, response = call(t, server, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, []string{"C-2025-402", "C-2025-401"}, listedNumbers(t, response))

	// shipping waits for production
	resp, response = call(t, server, http.MethodPut, "/api/v1/phases/"+itoa(stove.Phases[1].ID)+"/status",
		map[string]string{"status": models.StatusPronto})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "PHASE_LOCKED", response["error"].(map[string]interface{})["code"])

	resp, _ = call(t, server, http.MethodPost, "/api/v1/orders/"+itoa(boiler.ID)+"/urgent",
		map[string]string{"text": "  Il cliente è senza riscaldamento  "})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	alert := <-notifications
	assert.Equal(t, services.KindUrgentMessage, alert.Kind)
	assert.Equal(t, "Il cliente è senza riscaldamento", alert.Fields["message"])
	assert.Equal(t, "Bianchi Srl", alert.Customer)

	exportResp, err := server.Client().Get(server.URL + "/api/v1/orders/export")
	require.NoError(t, err)
	defer exportResp.Body.Close()
	require.Equal(t, http.StatusOK, exportResp.StatusCode)
	assert.Equal(t, services.XLSXContentType, exportResp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(exportResp.Header.Get("Content-Disposition"), "attachment; filename=\"commesse_"))

	workbook, err := excelize.OpenReader(exportResp.Body)
	require.NoError(t, err)
	defer workbook.Close()
	rows, err := workbook.GetRows(services.ExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "C-2025-402", rows[1][0])
}

// TestCORSPreflightAcceptance checks that the configured office origin may call the API
func TestCORSPreflightAcceptance(t *testing.T) {
	server := httptest.NewServer(setupRouter())
	defer server.Close()

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/v1/orders/1/priority", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
