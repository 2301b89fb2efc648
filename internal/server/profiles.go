package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dqa360-backend/internal/services/profiles"
	"dqa360-backend/internal/services/scheduler"
)

func (s *Server) listProfilesHandler(c *gin.Context) {
	list, err := s.profiles.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list profiles: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": list})
}

func (s *Server) createProfileHandler(c *gin.Context) {
	var req profiles.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	profile, err := s.profiles.Create(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, profile)
}

func (s *Server) getProfileHandler(c *gin.Context) {
	profile, err := s.profiles.Get(c.Param("profile_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) updateProfileHandler(c *gin.Context) {
	var req profiles.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	profile, err := s.profiles.Update(c.Param("profile_id"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) deleteProfileHandler(c *gin.Context) {
	if err := s.profiles.Delete(c.Param("profile_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// testProfileHandler pings the instance and returns the updated profile
// either way; the error message rides alongside on failure
func (s *Server) testProfileHandler(c *gin.Context) {
	profile, err := s.profiles.Test(c.Param("profile_id"))
	if err != nil {
		if profile == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"profile": profile, "connected": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "connected": true})
}

func (s *Server) listJobsHandler(c *gin.Context) {
	jobs, err := s.scheduler.ListJobs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) upsertJobHandler(c *gin.Context) {
	var req scheduler.UpsertJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	jobID, err := s.scheduler.UpsertJob(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID})
}

func (s *Server) deleteJobHandler(c *gin.Context) {
	if err := s.scheduler.DeleteJob(c.Param("job_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
