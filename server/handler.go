package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejiriaustin/fimtracker/db"
	"github.com/tejiriaustin/fimtracker/logger"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type Handler struct {
	logger *logger.Logger
}

func NewHandler(logger *logger.Logger) *Handler {
	return &Handler{logger: logger}
}

// SetupHandler builds the read-only router over the file history.
func (h *Handler) SetupHandler(querier db.Querier) *gin.Engine {
	r := gin.New()

	r.Use(h.loggerMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", h.healthCheck())
	r.GET("/files", h.listFiles(querier))
	r.GET("/files/history", h.fileHistory(querier))
	r.GET("/events", h.listEvents(querier))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "not found",
		})
	})

	return r
}

func (h *Handler) healthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive and well",
		})
	}
}

func (h *Handler) listFiles(querier db.Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		files, err := querier.ListFiles(c.Request.Context(), limit)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
			return
		}
		c.JSON(http.StatusOK, files)
	}
}

func (h *Handler) fileHistory(querier db.Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, err := validateQueryPath(c.Query("path"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		trail, err := querier.History(c.Request.Context(), path)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}
		if len(trail) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no history for path"})
			return
		}
		c.JSON(http.StatusOK, trail)
	}
}

func (h *Handler) listEvents(querier db.Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var since time.Time
		if raw := c.Query("since"); raw != "" {
			since, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
				return
			}
		}

		events, err := querier.ListEvents(c.Request.Context(), since, limit)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}
