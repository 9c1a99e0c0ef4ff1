package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// parseIDParam reads a snowflake path parameter, answering 400 itself
// on malformed input.
func parseIDParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		invalidIDError(c, name)
		return 0, false
	}
	return id, true
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// login godoc
// @Summary      Authenticate a staff user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body loginRequest true "credentials"
// @Success      200 {object} auth.LoginResponse
// @Failure      401 {object} apiError
// @Router       /api/auth/login [post]
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "username and password are required")
		return
	}

	resp, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
