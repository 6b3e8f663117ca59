package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lakeshoreswim/clubhouse/internal/accesscode"
	"github.com/lakeshoreswim/clubhouse/internal/authorization"
	"github.com/lakeshoreswim/clubhouse/internal/config"
	"github.com/lakeshoreswim/clubhouse/internal/guestpass"
	guestpassdomain "github.com/lakeshoreswim/clubhouse/internal/guestpass/domain"
	"github.com/lakeshoreswim/clubhouse/internal/joblock"
	"github.com/lakeshoreswim/clubhouse/internal/member"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
	"github.com/lakeshoreswim/clubhouse/internal/membershiptype"
	typedomain "github.com/lakeshoreswim/clubhouse/internal/membershiptype/domain"
	"github.com/lakeshoreswim/clubhouse/internal/metrics"
	"github.com/lakeshoreswim/clubhouse/internal/providers"
	paymentprovider "github.com/lakeshoreswim/clubhouse/internal/providers/payment"
	"github.com/lakeshoreswim/clubhouse/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	metrics.Module,
	fx.Provide(registerGin),
	authorization.Module,
	joblock.Module,
	providers.Module,
	membershiptype.Module,
	member.Module,
	accesscode.Module,
	guestpass.Module,
	scheduler.Module,
	fx.Provide(func(s *scheduler.Scheduler) Broadcaster { return s }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(MetricsMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return r
}

func registerGin(m *metrics.Metrics) *gin.Engine {
	return NewEngine(m)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// Broadcaster delivers one message to every active member.
type Broadcaster interface {
	SendBulk(ctx context.Context, subject, htmlBody string) (int, error)
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	authzSvc    authorization.Service
	memberSvc   memberdomain.Service
	typeSvc     typedomain.Service
	passSvc     guestpassdomain.Service
	accessCodes accesscode.Service
	gateway     paymentprovider.Gateway
	broadcast   Broadcaster
	metrics     *metrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	AuthzSvc    authorization.Service
	MemberSvc   memberdomain.Service
	TypeSvc     typedomain.Service
	PassSvc     guestpassdomain.Service
	AccessCodes accesscode.Service
	Gateway     paymentprovider.Gateway
	Broadcast   Broadcaster
	Metrics     *metrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		genID:       p.GenID,
		authzSvc:    p.AuthzSvc,
		memberSvc:   p.MemberSvc,
		typeSvc:     p.TypeSvc,
		passSvc:     p.PassSvc,
		accessCodes: p.AccessCodes,
		gateway:     p.Gateway,
		broadcast:   p.Broadcast,
		metrics:     p.Metrics,
	}

	svc.registerPublicRoutes()
	svc.registerMemberRoutes()
	svc.registerKioskRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) registerPublicRoutes() {
	s.engine.POST("/signup", s.Signup)
	s.engine.GET("/membership_types", s.ListPublicMembershipTypes)
	s.engine.POST("/api/webhooks/payment", s.PaymentWebhook)
}

func (s *Server) registerMemberRoutes() {
	api := s.engine.Group("/api", s.RequireAuth())

	me := api.Group("/me")
	me.GET("", s.Authorize(authorization.ObjectMember, authorization.ActionViewSelf), s.GetSelf)
	me.PATCH("", s.Authorize(authorization.ObjectMember, authorization.ActionUpdateSelf), s.UpdateSelf)
	me.GET("/balance", s.Authorize(authorization.ObjectGuestPass, authorization.ActionViewSelf), s.GetSelfBalance)
	me.GET("/passes", s.Authorize(authorization.ObjectGuestPass, authorization.ActionViewSelf), s.GetSelfPassLog)
	me.POST("/passes/purchase", s.Authorize(authorization.ObjectGuestPass, authorization.ActionPurchase), s.PurchasePasses)
}

func (s *Server) registerKioskRoutes() {
	kiosk := s.engine.Group("/kiosk", s.RequireAuth())

	kiosk.POST("/access", s.Authorize(authorization.ObjectAccessCode, authorization.ActionValidate), s.KioskAccess)
	kiosk.POST("/members/:id/use_pass", s.Authorize(authorization.ObjectGuestPass, authorization.ActionUse), s.UsePass)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.RequireAuth())

	members := admin.Group("/members")
	members.GET("", s.Authorize(authorization.ObjectMember, authorization.ActionView), s.ListMembers)
	members.POST("", s.Authorize(authorization.ObjectMember, authorization.ActionCreate), s.CreateMember)
	members.GET("/:id", s.Authorize(authorization.ObjectMember, authorization.ActionView), s.GetMember)
	members.PATCH("/:id", s.Authorize(authorization.ObjectMember, authorization.ActionUpdate), s.UpdateMember)
	members.DELETE("/:id", s.Authorize(authorization.ObjectMember, authorization.ActionDelete), s.DeleteMember)
	members.POST("/:id/activate", s.Authorize(authorization.ObjectMember, authorization.ActionUpdate), s.ActivateMember)
	members.POST("/:id/deactivate", s.Authorize(authorization.ObjectMember, authorization.ActionUpdate), s.DeactivateMember)
	members.GET("/:id/balance", s.Authorize(authorization.ObjectGuestPass, authorization.ActionView), s.GetMemberBalance)
	members.POST("/:id/adjust_passes", s.Authorize(authorization.ObjectGuestPass, authorization.ActionAdjust), s.AdjustPasses)
	members.POST("/:id/recompute_balance", s.Authorize(authorization.ObjectGuestPass, authorization.ActionAdjust), s.RecomputeBalance)

	admin.GET("/guest_passes", s.Authorize(authorization.ObjectGuestPass, authorization.ActionView), s.GetPassLog)
	admin.POST("/email/broadcast", s.Authorize(authorization.ObjectEmail, authorization.ActionSend), s.BroadcastEmail)

	types := admin.Group("/membership_types")
	types.GET("", s.Authorize(authorization.ObjectMembershipType, authorization.ActionView), s.ListMembershipTypes)
	types.POST("", s.Authorize(authorization.ObjectMembershipType, authorization.ActionCreate), s.CreateMembershipType)
	types.GET("/:id", s.Authorize(authorization.ObjectMembershipType, authorization.ActionView), s.GetMembershipType)
	types.PATCH("/:id", s.Authorize(authorization.ObjectMembershipType, authorization.ActionUpdate), s.UpdateMembershipType)
}
