package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"kolmarket/pkg/errutil"
	"kolmarket/services/acceptance"
	"kolmarket/services/campaign"
	"kolmarket/services/participant"
	"kolmarket/services/tier"
	"kolmarket/services/verification"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Handler struct {
	db    *gorm.DB
	redis *redis.Client

	tiers        *tier.Service
	participants *participant.Service
	campaigns    *campaign.Service
	acceptances  *acceptance.Service
	verification *verification.Service
}

type HandlerParams struct {
	fx.In

	DB    *gorm.DB
	Redis *redis.Client `optional:"true"`

	Tiers        *tier.Service
	Participants *participant.Service
	Campaigns    *campaign.Service
	Acceptances  *acceptance.Service
	Verification *verification.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		db:           p.DB,
		redis:        p.Redis,
		tiers:        p.Tiers,
		participants: p.Participants,
		campaigns:    p.Campaigns,
		acceptances:  p.Acceptances,
		verification: p.Verification,
	}
}

func chatIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		_ = c.Error(errutil.BadRequest("chat_id must be numeric"))
		return 0, false
	}
	return id, true
}

func (h *Handler) ListTiers(c *gin.Context) {
	tiers, err := h.tiers.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (h *Handler) QuoteTier(c *gin.Context) {
	var req struct {
		SlotCount int `json:"slot_count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	quote, err := h.tiers.Price(c.Request.Context(), c.Param("key"), req.SlotCount)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) UpdateTier(c *gin.Context) {
	var req tier.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	t, err := h.tiers.Update(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) RegisterCustomer(c *gin.Context) {
	var req participant.RegisterCustomerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	cust, err := h.participants.RegisterCustomer(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cust)
}

func (h *Handler) RegisterKOL(c *gin.Context) {
	var req participant.RegisterKOLInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	k, err := h.participants.RegisterKOL(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, k)
}

func (h *Handler) StartHandleVerification(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	code, err := h.participants.StartHandleVerification(c.Request.Context(), chatID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

func (h *Handler) ConfirmHandleVerification(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	k, err := h.participants.ConfirmHandleVerification(c.Request.Context(), chatID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, k)
}

type createCampaignRequest struct {
	CustomerChatID int64     `json:"customer_chat_id"`
	ProjectName    string    `json:"project_name"`
	TierKey        string    `json:"tier_key"`
	TargetPostURL  string    `json:"target_post_url"`
	Brief          string    `json:"brief"`
	SlotCount      int       `json:"slot_count"`
	Deadline       time.Time `json:"deadline"`
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	cust, err := h.participants.RequireCustomer(c.Request.Context(), req.CustomerChatID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	cmp, err := h.campaigns.Create(c.Request.Context(), campaign.CreateInput{
		CustomerID:    cust.CustomerID,
		ProjectName:   req.ProjectName,
		TierKey:       req.TierKey,
		TargetPostURL: req.TargetPostURL,
		Brief:         req.Brief,
		SlotCount:     req.SlotCount,
		Deadline:      req.Deadline,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, cmp)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	out, err := h.campaigns.List(c.Request.Context(), campaign.ListInput{
		CustomerID: c.Query("customer_id"),
		Status:     campaign.Status(c.Query("status")),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

func (h *Handler) OpenCampaigns(c *gin.Context) {
	out, err := h.campaigns.OpenCampaigns(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	cmp, err := h.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) ActivateCampaign(c *gin.Context) {
	cmp, err := h.campaigns.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) CancelCampaign(c *gin.Context) {
	cmp, err := h.campaigns.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) SetAnnouncementRef(c *gin.Context) {
	var req struct {
		Ref string `json:"ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	if err := h.campaigns.SetAnnouncementRef(c.Request.Context(), c.Param("id"), req.Ref); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListCampaignAcceptances(c *gin.Context) {
	out, err := h.acceptances.ListForCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acceptances": out})
}

func (h *Handler) AcceptSlot(c *gin.Context) {
	var req struct {
		KOLChatID int64 `json:"kol_chat_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	kol, err := h.participants.RequireKOL(c.Request.Context(), req.KOLChatID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.acceptances.Accept(c.Request.Context(), c.Param("id"), kol)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListKOLAcceptances(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	kol, err := h.participants.RequireKOL(c.Request.Context(), chatID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.acceptances.ListForKOL(c.Request.Context(), kol.KOLID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acceptances": out})
}

func (h *Handler) SubmitProof(c *gin.Context) {
	var req struct {
		PostURL string `json:"post_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	acc, result, err := h.verification.SubmitProof(c.Request.Context(), c.Param("id"), req.PostURL)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acceptance": acc, "result": result})
}

func (h *Handler) ManuallyVerify(c *gin.Context) {
	acc, err := h.verification.ManuallyVerify(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) ManuallyReject(c *gin.Context) {
	acc, err := h.verification.ManuallyReject(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) MarkPaid(c *gin.Context) {
	acc, err := h.acceptances.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) PendingReviews(c *gin.Context) {
	out, err := h.verification.PendingReviews(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acceptances": out})
}

func (h *Handler) UnpaidVerified(c *gin.Context) {
	out, err := h.acceptances.UnpaidVerified(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acceptances": out})
}
