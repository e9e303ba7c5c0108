package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Jobs.Status())
}

func (s *Server) runJob(c *gin.Context) {
	result, err := s.services.Jobs.Run(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if result.AlreadyRunning {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

func (s *Server) startJob(c *gin.Context) {
	if err := s.services.Jobs.Start(c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job started"})
}

func (s *Server) stopJob(c *gin.Context) {
	if err := s.services.Jobs.Stop(c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job stopped"})
}

func (s *Server) restartJobs(c *gin.Context) {
	s.services.Jobs.RestartAll()
	c.JSON(http.StatusOK, s.services.Jobs.Status())
}
