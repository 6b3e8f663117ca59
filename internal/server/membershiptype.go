package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	typedomain "github.com/lakeshoreswim/clubhouse/internal/membershiptype/domain"
)

func (s *Server) ListPublicMembershipTypes(c *gin.Context) {
	resp, err := s.typeSvc.List(c.Request.Context(), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMembershipTypes(c *gin.Context) {
	var query struct {
		ActiveOnly bool `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.typeSvc.List(c.Request.Context(), query.ActiveOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMembershipType(c *gin.Context) {
	resp, err := s.typeSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createMembershipTypeRequest struct {
	Name             string `json:"name"`
	PriceCents       int64  `json:"price_cents"`
	PeriodDays       int    `json:"period_days"`
	AllowsAdditional bool   `json:"allows_additional"`
}

func (s *Server) CreateMembershipType(c *gin.Context) {
	var req createMembershipTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.typeSvc.Create(c.Request.Context(), typedomain.CreateMembershipTypeRequest{
		Name:             strings.TrimSpace(req.Name),
		PriceCents:       req.PriceCents,
		PeriodDays:       req.PeriodDays,
		AllowsAdditional: req.AllowsAdditional,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateMembershipTypeRequest struct {
	PriceCents *int64 `json:"price_cents"`
	PeriodDays *int   `json:"period_days"`
	Active     *bool  `json:"active"`
}

func (s *Server) UpdateMembershipType(c *gin.Context) {
	var req updateMembershipTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.typeSvc.Update(c.Request.Context(), typedomain.UpdateMembershipTypeRequest{
		ID:         strings.TrimSpace(c.Param("id")),
		PriceCents: req.PriceCents,
		PeriodDays: req.PeriodDays,
		Active:     req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
