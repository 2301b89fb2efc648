package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dqa360-backend/internal/models"
)

type createAssessmentRequest struct {
	Info            map[string]interface{}   `json:"info"`
	Dhis2Config     map[string]interface{}   `json:"dhis2Config"`
	Datasets        []map[string]interface{} `json:"selectedDatasets"`
	DataElements    []map[string]interface{} `json:"selectedDataElements"`
	OrgUnits        []map[string]interface{} `json:"selectedOrgUnits"`
	OrgUnitMappings []map[string]interface{} `json:"orgUnitMappings"`
	LocalDatasets   []map[string]interface{} `json:"localDatasets"`
	Actor           string                   `json:"actor"`
}

// createAssessmentHandler composes the canonical document from raw input
// and persists it
func (s *Server) createAssessmentHandler(c *gin.Context) {
	var req createAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	doc := s.builder.Build(
		req.Info,
		req.Dhis2Config,
		req.Datasets,
		req.DataElements,
		req.OrgUnits,
		req.OrgUnitMappings,
		req.LocalDatasets,
		req.Actor,
	)

	saved, err := s.repo.Save(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to save assessment: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (s *Server) listAssessmentsHandler(c *gin.Context) {
	summaries, err := s.repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to list assessments: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": summaries})
}

func (s *Server) getAssessmentHandler(c *gin.Context) {
	doc, err := s.repo.Get(c.Request.Context(), c.Param("assessment_id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load assessment: " + err.Error()})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Assessment not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// updateAssessmentHandler replaces a document wholesale. The body is the
// full document; the path ID wins over any ID in the body.
func (s *Server) updateAssessmentHandler(c *gin.Context) {
	var doc models.Assessment
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	doc.ID = c.Param("assessment_id")

	saved, err := s.repo.Save(c.Request.Context(), &doc)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to save assessment: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) deleteAssessmentHandler(c *gin.Context) {
	if err := s.repo.Delete(c.Request.Context(), c.Param("assessment_id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to delete assessment: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) repairAssessmentHandler(c *gin.Context) {
	doc, changed, err := s.repo.Repair(c.Request.Context(), c.Param("assessment_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"repaired": changed, "assessment": doc})
}

func (s *Server) clearCacheHandler(c *gin.Context) {
	s.repo.ClearCache()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) rebuildIndexHandler(c *gin.Context) {
	idx, err := s.repo.RebuildIndex(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to rebuild index: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, idx)
}
