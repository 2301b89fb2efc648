package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"dqa360-backend/internal/services/backup"
	"dqa360-backend/internal/services/metadata"
	"dqa360-backend/internal/services/tasks"
)

// createToolsHandler starts tool-dataset creation as a background task and
// returns its ID for polling
func (s *Server) createToolsHandler(c *gin.Context) {
	assessmentID := c.Param("assessment_id")

	// Validate up front so the caller gets a 404 instead of a failed task
	doc, err := s.repo.Get(c.Request.Context(), assessmentID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load assessment: " + err.Error()})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Assessment not found"})
		return
	}

	taskID := s.tasks.Start("toolset", func(update tasks.UpdateFunc) (interface{}, error) {
		result, err := s.toolset.CreateAssessmentTools(context.Background(), assessmentID, func(p metadata.Progress) {
			update("running", p.Percentage, p.Message)
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})

	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

// createMetadataPackageHandler runs an ordered package creation in the
// background
func (s *Server) createMetadataPackageHandler(c *gin.Context) {
	var pkg metadata.Package
	if err := c.ShouldBindJSON(&pkg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	taskID := s.tasks.Start("metadata_package", func(update tasks.UpdateFunc) (interface{}, error) {
		result := s.factory.CreateMetadataPackage(pkg, func(p metadata.Progress) {
			update("running", p.Percentage, p.Message)
		})
		if !result.Success {
			return result, fmt.Errorf("metadata package completed with %d errors", len(result.Errors))
		}
		return result, nil
	})

	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

func (s *Server) getTaskHandler(c *gin.Context) {
	progress, err := s.tasks.Get(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, progress)
}

type exportBackupRequest struct {
	Namespaces []string `json:"namespaces"`
}

func (s *Server) exportBackupHandler(c *gin.Context) {
	var req exportBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if len(req.Namespaces) == 0 {
		req.Namespaces = []string{s.cfg.Namespace}
	}

	doc, err := s.backups.Export(c.Request.Context(), req.Namespaces)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Export failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) importBackupHandler(c *gin.Context) {
	var doc backup.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	result, err := s.backups.Import(c.Request.Context(), &doc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Import failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
