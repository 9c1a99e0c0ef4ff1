package server

import (
	"net/http"

	"github.com/broadbill/broadbill/internal/user"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type userCreateRequest struct {
	Username string  `json:"username" binding:"required"`
	Email    string  `json:"email"`
	Password string  `json:"password" binding:"required"`
	RoleID   *string `json:"role_id"`
}

type userUpdateRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	RoleID   *string `json:"role_id"`
	IsActive *bool   `json:"is_active"`
}

type roleCreateRequest struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

type roleUpdateRequest struct {
	Name          *string   `json:"name"`
	Description   *string   `json:"description"`
	PermissionIDs *[]string `json:"permission_ids"`
}

func (s *Server) createUser(c *gin.Context) {
	var req userCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "username and password are required")
		return
	}
	roleID, ok := optionalID(c, req.RoleID, "role_id")
	if !ok {
		return
	}
	created, err := s.users.Create(c.Request.Context(), user.CreateUserRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		RoleID:   roleID,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.users.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *Server) getUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	found, err := s.users.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": found})
}

func (s *Server) updateUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req userUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "malformed request body")
		return
	}
	roleID, ok := optionalID(c, req.RoleID, "role_id")
	if !ok {
		return
	}
	err := s.users.Update(c.Request.Context(), id, user.UpdateUserRequest{
		Email:    req.Email,
		Password: req.Password,
		RoleID:   roleID,
		IsActive: req.IsActive,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": true}})
}

func (s *Server) deleteUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := s.users.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) createRole(c *gin.Context) {
	var req roleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "name is required")
		return
	}
	permissionIDs, ok := parseIDList(c, req.PermissionIDs, "permission_ids")
	if !ok {
		return
	}
	created, err := s.roles.Create(c.Request.Context(), req.Name, req.Description, permissionIDs)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) listRoles(c *gin.Context) {
	roles, err := s.roles.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": roles})
}

func (s *Server) getRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	found, err := s.roles.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": found})
}

func (s *Server) updateRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req roleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "malformed request body")
		return
	}
	var permissionIDs *[]snowflake.ID
	if req.PermissionIDs != nil {
		parsed, ok := parseIDList(c, *req.PermissionIDs, "permission_ids")
		if !ok {
			return
		}
		permissionIDs = &parsed
	}
	if err := s.roles.Update(c.Request.Context(), id, req.Name, req.Description, permissionIDs); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": true}})
}

func (s *Server) deleteRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := s.roles.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) listPermissions(c *gin.Context) {
	perms, err := s.roles.ListPermissions(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": perms})
}

func parseIDList(c *gin.Context, raw []string, field string) ([]snowflake.ID, bool) {
	ids := make([]snowflake.ID, 0, len(raw))
	for _, value := range raw {
		id, err := snowflake.ParseString(value)
		if err != nil {
			invalidIDError(c, field)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
