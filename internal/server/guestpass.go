package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	guestpassdomain "github.com/lakeshoreswim/clubhouse/internal/guestpass/domain"
	paymentprovider "github.com/lakeshoreswim/clubhouse/internal/providers/payment"
	"github.com/lakeshoreswim/clubhouse/pkg/db/pagination"
	"go.uber.org/zap"
)

type purchasePassesRequest struct {
	Quantity    int   `json:"quantity"`
	AmountCents int64 `json:"amount_cents"`
}

func (s *Server) PurchasePasses(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req purchasePassesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.passSvc.Purchase(c.Request.Context(), guestpassdomain.PurchaseRequest{
		MemberID:    member.ID.String(),
		Quantity:    req.Quantity,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSelfBalance(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		AbortWithError(c, ErrForbidden)
		return
	}

	balance, err := s.passSvc.GetBalance(c.Request.Context(), member.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"balance": balance}})
}

func (s *Server) GetSelfPassLog(c *gin.Context) {
	member := currentMember(c)
	if member == nil {
		AbortWithError(c, ErrForbidden)
		return
	}

	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.passSvc.GetLog(c.Request.Context(), guestpassdomain.GetLogRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
		MemberID:  member.ID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UsePass(c *gin.Context) {
	resp, err := s.passSvc.UsePass(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.IncPassUsed()
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type kioskAccessRequest struct {
	Code    string `json:"code"`
	UsePass bool   `json:"use_pass"`
}

// KioskAccess answers a door swipe: validate the code, optionally burn a
// guest pass for a tag-along in the same request.
func (s *Server) KioskAccess(c *gin.Context) {
	var req kioskAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.accessCodes.Validate(c.Request.Context(), req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payload := gin.H{
		"member_id":  member.ID.String(),
		"name":       member.Name,
		"status":     member.Status,
		"expires_at": member.ExpiresAt,
		"balance":    member.GuestPassBalance,
	}

	if req.UsePass {
		used, err := s.passSvc.UsePass(c.Request.Context(), member.ID.String())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if s.metrics != nil {
			s.metrics.IncPassUsed()
		}
		payload["balance"] = used.Remaining
		payload["pass_used"] = true
	}

	c.JSON(http.StatusOK, gin.H{"data": payload})
}

func (s *Server) GetMemberBalance(c *gin.Context) {
	balance, err := s.passSvc.GetBalance(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"balance": balance}})
}

type adjustPassesRequest struct {
	Delta int    `json:"delta"`
	Note  string `json:"note"`
}

func (s *Server) AdjustPasses(c *gin.Context) {
	var req adjustPassesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.passSvc.AdminAdjust(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Delta, strings.TrimSpace(req.Note))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecomputeBalance(c *gin.Context) {
	balance, err := s.passSvc.RecomputeBalance(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"balance": balance}})
}

func (s *Server) GetPassLog(c *gin.Context) {
	var query struct {
		pagination.Pagination
		MemberID      string `form:"member_id"`
		PaymentStatus string `form:"payment_status"`
		Search        string `form:"search"`
		From          string `form:"from"`
		To            string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}

	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.passSvc.GetLog(c.Request.Context(), guestpassdomain.GetLogRequest{
		PageToken:     query.PageToken,
		PageSize:      query.PageSize,
		MemberID:      strings.TrimSpace(query.MemberID),
		PaymentStatus: strings.TrimSpace(query.PaymentStatus),
		Search:        strings.TrimSpace(query.Search),
		From:          from,
		To:            to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// PaymentWebhook settles pending purchases from processor callbacks. Event
// replays hit the idempotent confirm/fail paths and return 200 again.
func (s *Server) PaymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.gateway.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	switch event.Type {
	case paymentprovider.EventCheckoutCompleted:
		if _, err := s.passSvc.ConfirmPurchase(c.Request.Context(), event.ReferenceID); err != nil {
			AbortWithError(c, err)
			return
		}
		if s.metrics != nil {
			s.metrics.IncPassPurchase()
		}
	case paymentprovider.EventCheckoutExpired:
		if err := s.passSvc.FailPurchase(c.Request.Context(), event.ReferenceID); err != nil {
			AbortWithError(c, err)
			return
		}
	default:
		s.log.Debug("ignoring webhook event", zap.String("type", event.Type))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
