package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"post-insight-pipeline/internal/config"
	"post-insight-pipeline/internal/queue"
	"post-insight-pipeline/services"
	"post-insight-pipeline/utils"
)

type enrichRequest struct {
	BatchSize int64 `json:"batch_size"`
	Force     bool  `json:"force"`
}

type syncRequest struct {
	BatchSize int64 `json:"batch_size"`
}

// SetupPipelineRoutes wires the operational API: pipeline stats plus
// endpoints that enqueue enrichment and index sync runs.
func SetupPipelineRoutes(router *gin.Engine, cfg *config.Config, stats *services.StatsService, client *asynq.Client) {
	api := router.Group("/api")

	api.GET("/stats", func(c *gin.Context) {
		overview, err := stats.Overview(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "failed to compute pipeline stats", err.Error())
			return
		}
		c.JSON(http.StatusOK, overview)
	})

	api.POST("/runs/enrich", func(c *gin.Context) {
		req := enrichRequest{BatchSize: cfg.BatchSize}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				utils.RespondWithBadRequest(c, "invalid request body", err.Error())
				return
			}
		}
		if req.BatchSize <= 0 {
			req.BatchSize = cfg.BatchSize
		}

		task, err := queue.NewEnrichTask(req.BatchSize, req.Force)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to build enrichment task", err.Error())
			return
		}

		info, err := client.EnqueueContext(c.Request.Context(), task)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to enqueue enrichment task", err.Error())
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id":    info.ID,
			"queue":      info.Queue,
			"batch_size": req.BatchSize,
			"force":      req.Force,
		})
	})

	api.POST("/runs/sync", func(c *gin.Context) {
		req := syncRequest{BatchSize: cfg.SyncBatchSize}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				utils.RespondWithBadRequest(c, "invalid request body", err.Error())
				return
			}
		}
		if req.BatchSize <= 0 {
			req.BatchSize = cfg.SyncBatchSize
		}

		task, err := queue.NewSyncTask(req.BatchSize)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to build sync task", err.Error())
			return
		}

		info, err := client.EnqueueContext(c.Request.Context(), task)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to enqueue sync task", err.Error())
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id":    info.ID,
			"queue":      info.Queue,
			"batch_size": req.BatchSize,
		})
	})
}
