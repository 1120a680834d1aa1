// Package server exposes the client's domain operations as a small JSON
// API for the dashboard UI. Persistence, display and aggregation stay on
// the application side; this layer only maps typed client results and
// failures onto HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bilifeed/internal/bili"
)

// New builds the gin router around a client.
func New(client *bili.Client, mode string) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/profile/:mid", profileHandler(client))
		api.GET("/feed/:mid", feedHandler(client))
		api.GET("/video/:bvid/summary", summaryHandler(client))
		api.GET("/video/:bvid/subtitles", subtitlesHandler(client))
	}

	admin := r.Group("/api/admin")
	{
		admin.DELETE("/cache/:prefix", sweepHandler(client))
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}

func profileHandler(client *bili.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		mid, err := strconv.ParseInt(c.Param("mid"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mid"})
			return
		}
		profile, err := client.Profile(c.Request.Context(), mid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

func feedHandler(client *bili.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		mid, err := strconv.ParseInt(c.Param("mid"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mid"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		videos, err := client.RecentVideos(c.Request.Context(), mid, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"videos": videos, "total": len(videos)})
	}
}

func summaryHandler(client *bili.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := client.Summary(c.Request.Context(), c.Param("bvid"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func subtitlesHandler(client *bili.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		track, err := client.Subtitles(c.Request.Context(), c.Param("bvid"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, track)
	}
}

func sweepHandler(client *bili.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed, err := client.SweepCache(c.Request.Context(), c.Param("prefix"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// writeError maps the client error taxonomy onto HTTP statuses. The UI
// treats 204 as "nothing available", 401 as "please re-authenticate".
func writeError(c *gin.Context, err error) {
	var authErr *bili.AuthError
	var businessErr *bili.BusinessError

	switch {
	case errors.Is(err, bili.ErrNoArtifact):
		c.Status(http.StatusNoContent)
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Message, "code": authErr.Code})
	case errors.As(err, &businessErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": businessErr.Message, "code": businessErr.Code})
	default:
		slog.Warn("upstream call failed", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
