package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"convoflow/internal/database"
	"convoflow/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness and how long the process has been up
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func HealthHandler(version string, started time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		now := time.Now().UTC()
		return c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "healthy",
			Timestamp: now,
			Version:   version,
			Uptime:    now.Sub(started).Truncate(time.Second).String(),
		})
	}
}

// DBHealthHandler runs a read-only round trip against the message database
// @Summary Database health check
// @Tags Health
// @Produce json
// @Success 200 {object} models.DBHealthResponse
// @Failure 503 {object} models.DBHealthResponse
// @Router /healthz/db [get]
func DBHealthHandler(db *sqlx.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.DBHealthResponse{
			Status:    "unknown",
			Timestamp: time.Now().UTC(),
		}

		if db == nil {
			response.Status = "unhealthy"
			response.Error = "Database connection not initialized"
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := database.ExecuteReadOnlyPing(ctx, db)
		response.Latency = time.Since(start)

		if err != nil {
			response.Status = "unhealthy"
			response.Error = fmt.Sprintf("Database read-only query failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		response.Status = "healthy"
		response.Connected = true

		return c.JSON(http.StatusOK, response)
	}
}

var listedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
}

// RootHandler describes the service: its channels and the routes actually registered,
// so optional routes such as thread search only appear when wired.
// @Summary Service description
// @Tags Health
// @Produce json
// @Success 200 {object} models.ServiceInfoResponse
// @Router /api/ [get]
func RootHandler(version string, routes func() []*echo.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		seen := make(map[string]bool)
		var endpoints []string
		for _, r := range routes() {
			key := r.Method + " " + r.Path
			if !listedMethods[r.Method] || seen[key] {
				continue
			}
			seen[key] = true
			endpoints = append(endpoints, key)
		}
		sort.Strings(endpoints)

		return c.JSON(http.StatusOK, models.ServiceInfoResponse{
			Service:   "convoflow",
			Version:   version,
			Channels:  []models.Channel{models.ChannelEmail, models.ChannelWhatsApp},
			Endpoints: endpoints,
		})
	}
}
