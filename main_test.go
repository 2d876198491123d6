package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/config"
	"github.com/opsdash/commesse-api/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response, 2)
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Commesse API is running", response["message"])
}

func TestNotificationChannel(t *testing.T) {
	tests := []struct {
		name        string
		redisAddr   string
		expectRedis bool
		expectWarn  int
	}{
		{
			name: "Log only without redis",
		},
		{
			// nothing listens on port 1, the channel is still built
			name:        "Redis stream added when configured",
			redisAddr:   "127.0.0.1:1",
			expectRedis: true,
			expectWarn:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			cfg := &config.Config{Redis: config.RedisConfig{
				Addr:         tt.redisAddr,
				Stream:       "commesse:notifications",
				StreamMaxLen: 100,
			}}

			channel, client := notificationChannel(cfg, zap.New(core))
			if client != nil {
				defer client.Close()
			}

			if tt.expectRedis {
				multi, ok := channel.(services.MultiChannel)
				require.True(t, ok)
				assert.Len(t, multi, 2)
				assert.NotNil(t, client)
			} else {
				_, ok := channel.(*services.LogChannel)
				assert.True(t, ok)
				assert.Nil(t, client)
			}
			assert.Equal(t, tt.expectWarn, logs.FilterMessage("redis is not reachable yet, notifications may fail").Len())
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("Anonymous without a domain", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		auth, writeGuard, err := authMiddleware(&config.Config{}, zap.New(core))
		require.NoError(t, err)
		assert.NotNil(t, auth)
		assert.Nil(t, writeGuard)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("Token and scope checks with a domain", func(t *testing.T) {
		cfg := &config.Config{Auth0Domain: "tenant.eu.auth0.com", Auth0Audience: "https://api.commesse.test"}
		auth, writeGuard, err := authMiddleware(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, auth)
		assert.NotNil(t, writeGuard)

		gin.SetMode(gin.TestMode)
		router := newRouter(testConfig(), zap.NewNop(), prometheus.NewRegistry(), auth, writeGuard)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
