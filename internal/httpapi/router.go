// Package httpapi exposes the marketplace services over HTTP. It is a thin
// translation layer; every rule lives in the services.
package httpapi

import (
	"net/http"

	"kolmarket/pkg/config"
	"kolmarket/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler, NewEngine),
)

func NewEngine(cfg *config.Config, h *Handler) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	v1 := r.Group("/v1")
	{
		v1.GET("/tiers", h.ListTiers)
		v1.POST("/tiers/:key/quote", h.QuoteTier)
		v1.PATCH("/tiers/:key", h.UpdateTier)

		v1.POST("/customers", h.RegisterCustomer)
		v1.POST("/kols", h.RegisterKOL)
		v1.POST("/kols/:chat_id/handle-verification", h.StartHandleVerification)
		v1.POST("/kols/:chat_id/handle-verification/confirm", h.ConfirmHandleVerification)
		v1.GET("/kols/:chat_id/acceptances", h.ListKOLAcceptances)

		v1.POST("/campaigns", h.CreateCampaign)
		v1.GET("/campaigns", h.ListCampaigns)
		v1.GET("/campaigns/open", h.OpenCampaigns)
		v1.GET("/campaigns/:id", h.GetCampaign)
		v1.POST("/campaigns/:id/activate", h.ActivateCampaign)
		v1.POST("/campaigns/:id/cancel", h.CancelCampaign)
		v1.PUT("/campaigns/:id/announcement", h.SetAnnouncementRef)
		v1.GET("/campaigns/:id/acceptances", h.ListCampaignAcceptances)
		v1.POST("/campaigns/:id/accept", h.AcceptSlot)

		v1.POST("/acceptances/:id/proof", h.SubmitProof)
		v1.POST("/acceptances/:id/verify", h.ManuallyVerify)
		v1.POST("/acceptances/:id/reject", h.ManuallyReject)
		v1.POST("/acceptances/:id/payout", h.MarkPaid)

		v1.GET("/reviews/pending", h.PendingReviews)
		v1.GET("/payouts/unpaid", h.UnpaidVerified)
	}

	return r
}

type dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Readiness(c *gin.Context) {
	status := http.StatusOK
	deps := make([]dependency, 0, 2)

	deps = append(deps, h.checkDB())
	deps = append(deps, h.checkRedis(c))
	for _, d := range deps {
		if d.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, gin.H{"deps": deps})
}

func (h *Handler) checkDB() dependency {
	dep := dependency{Name: "database", Status: "ok"}
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		dep.Status = "unavailable"
		dep.Message = err.Error()
	}
	return dep
}

func (h *Handler) checkRedis(c *gin.Context) dependency {
	dep := dependency{Name: "redis", Status: "ok"}
	if h.redis == nil {
		return dep
	}
	if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
		dep.Status = "unavailable"
		dep.Message = err.Error()
	}
	return dep
}
