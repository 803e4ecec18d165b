// Package api exposes the read-only reporting endpoints over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolwatch/internal/ingest"
	"poolwatch/internal/model"
)

// NewRouter builds the reporting router on a read-only engine. Nothing
// here writes to the ledger.
func NewRouter(engine *ingest.Engine, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/earnings/summary", getSummary(engine, logger))
	router.GET("/earnings/blocks", getBlocks(engine, logger))
	router.GET("/snapshots/latest", getLatestSnapshot(engine, logger))
	router.GET("/snapshots", getAllSnapshots(engine, logger))

	return router
}

func getSummary(engine *ingest.Engine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := engine.Summarize(c.Request.Context())
		if err != nil {
			logger.Error("summarize failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func getBlocks(engine *ingest.Engine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		after := int64(0)
		if raw := c.Query("after"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after timestamp"})
				return
			}
			after = parsed
		}

		blocks, err := engine.BlocksAfter(c.Request.Context(), after)
		if err != nil {
			logger.Error("blocks query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if blocks == nil {
			blocks = []model.BlockEarning{}
		}
		c.JSON(http.StatusOK, gin.H{"after": after, "blocks": blocks})
	}
}

func getLatestSnapshot(engine *ingest.Engine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, found, err := engine.LastSnapshot(c.Request.Context())
		if err != nil {
			logger.Error("snapshot query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no snapshots stored"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"snapshot":        snap,
			"total_accounted": snap.TotalAccounted(),
			"total":           snap.Total(),
		})
	}
}

func getAllSnapshots(engine *ingest.Engine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		totals, err := engine.AllSnapshots(c.Request.Context())
		if err != nil {
			logger.Error("snapshots query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, totals)
	}
}
