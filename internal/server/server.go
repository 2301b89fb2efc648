// Package server exposes the HTTP surface: assessment CRUD and repair,
// metadata package creation, tool-dataset creation as background tasks,
// connection profiles, scheduled jobs and backups.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dqa360-backend/internal/config"
	"dqa360-backend/internal/services/assessment"
	"dqa360-backend/internal/services/backup"
	"dqa360-backend/internal/services/metadata"
	"dqa360-backend/internal/services/profiles"
	"dqa360-backend/internal/services/scheduler"
	"dqa360-backend/internal/services/tasks"
	"dqa360-backend/internal/services/toolset"
)

// Server bundles the service layer behind gin handlers
type Server struct {
	router    *gin.Engine
	cfg       *config.Config
	repo      *assessment.Repository
	builder   *assessment.Builder
	factory   *metadata.Service
	toolset   *toolset.Service
	backups   *backup.Service
	tasks     *tasks.Service
	profiles  *profiles.Service
	scheduler *scheduler.Service
}

// New creates the server and registers all routes
func New(
	cfg *config.Config,
	repo *assessment.Repository,
	builder *assessment.Builder,
	factory *metadata.Service,
	toolsetSvc *toolset.Service,
	backups *backup.Service,
	taskSvc *tasks.Service,
	profileSvc *profiles.Service,
	schedulerSvc *scheduler.Service,
) *Server {
	s := &Server{
		router:    gin.Default(),
		cfg:       cfg,
		repo:      repo,
		builder:   builder,
		factory:   factory,
		toolset:   toolsetSvc,
		backups:   backups,
		tasks:     taskSvc,
		profiles:  profileSvc,
		scheduler: schedulerSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")

	assessments := v1.Group("/assessments")
	{
		assessments.GET("", s.listAssessmentsHandler)
		assessments.POST("", s.createAssessmentHandler)
		assessments.GET("/:assessment_id", s.getAssessmentHandler)
		assessments.PUT("/:assessment_id", s.updateAssessmentHandler)
		assessments.DELETE("/:assessment_id", s.deleteAssessmentHandler)
		assessments.POST("/:assessment_id/repair", s.repairAssessmentHandler)
		assessments.POST("/:assessment_id/tools", s.createToolsHandler)
	}
	v1.POST("/cache/clear", s.clearCacheHandler)
	v1.POST("/index/rebuild", s.rebuildIndexHandler)

	v1.POST("/metadata/packages", s.createMetadataPackageHandler)
	v1.GET("/tasks/:task_id", s.getTaskHandler)

	profileRoutes := v1.Group("/profiles")
	{
		profileRoutes.GET("", s.listProfilesHandler)
		profileRoutes.POST("", s.createProfileHandler)
		profileRoutes.GET("/:profile_id", s.getProfileHandler)
		profileRoutes.PUT("/:profile_id", s.updateProfileHandler)
		profileRoutes.DELETE("/:profile_id", s.deleteProfileHandler)
		profileRoutes.POST("/:profile_id/test", s.testProfileHandler)
	}

	jobRoutes := v1.Group("/jobs")
	{
		jobRoutes.GET("", s.listJobsHandler)
		jobRoutes.POST("", s.upsertJobHandler)
		jobRoutes.DELETE("/:job_id", s.deleteJobHandler)
	}

	backupRoutes := v1.Group("/backups")
	{
		backupRoutes.POST("/export", s.exportBackupHandler)
		backupRoutes.POST("/import", s.importBackupHandler)
	}
}

// Run serves until the listener fails
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Router exposes the underlying engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
