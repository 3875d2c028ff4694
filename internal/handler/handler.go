package handler

import (
	"context"
	"strconv"

	"pointmarket/internal/config"
	"pointmarket/internal/service"
	"pointmarket/pkg/response"

	"github.com/gin-gonic/gin"
)

// OutboxRetrier 失败消息重新投递
type OutboxRetrier interface {
	RetryFailed(ctx context.Context, limit int) (int64, error)
}

// Handler 统一处理器，只做参数解析和响应转换
type Handler struct {
	svc    *service.Services
	cfg    *config.Config
	outbox OutboxRetrier
}

func NewHandler(svc *service.Services, cfg *config.Config, outbox OutboxRetrier) *Handler {
	return &Handler{svc: svc, cfg: cfg, outbox: outbox}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func operatorID(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.GetHeader(headerUserID), 10, 64)
	return id
}

// ============================================================
// 订单
// ============================================================

type CreateOrderRequest struct {
	ProjectID int64 `json:"project_id" binding:"required,gt=0"`
}

// CreateOrder POST /api/v1/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Orders.Create(c.Request.Context(), req.ProjectID, currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrder GET /api/v1/orders/:order_no
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.svc.Orders.Get(c.Request.Context(), c.Param("order_no"), currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders GET /api/v1/orders?role=BUYER&status=PAID
func (h *Handler) ListOrders(c *gin.Context) {
	page, pageSize := pageParams(c)
	orders, total, err := h.svc.Orders.ListByUser(c.Request.Context(), currentUserID(c),
		c.Query("role"), c.Query("status"), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Page(c, orders, total, page, pageSize)
}

// ListOrderLogs GET /api/v1/orders/:order_no/logs
func (h *Handler) ListOrderLogs(c *gin.Context) {
	logs, err := h.svc.Orders.ListLogs(c.Request.Context(), c.Param("order_no"), currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, logs)
}

// PayOrder POST /api/v1/orders/:order_no/pay
func (h *Handler) PayOrder(c *gin.Context) {
	var req service.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Orders.Pay(c.Request.Context(), c.Param("order_no"), &req, currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=256"`
}

// CancelOrder POST /api/v1/orders/:order_no/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Orders.Cancel(c.Request.Context(), c.Param("order_no"), currentUserID(c), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// CompleteOrder POST /api/v1/orders/:order_no/complete
func (h *Handler) CompleteOrder(c *gin.Context) {
	result, err := h.svc.Orders.Complete(c.Request.Context(), c.Param("order_no"), currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// RefundOrder POST /api/v1/orders/:order_no/refund
func (h *Handler) RefundOrder(c *gin.Context) {
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Orders.RequestRefund(c.Request.Context(), c.Param("order_no"), currentUserID(c), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 积分与余额
// ============================================================

// GetPointsAccount GET /api/v1/points/account
func (h *Handler) GetPointsAccount(c *gin.Context) {
	account, err := h.svc.Ledger.GetAccount(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, account)
}

// ListPointTransactions GET /api/v1/points/transactions?type=CONSUME
func (h *Handler) ListPointTransactions(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.svc.Ledger.ListTransactions(c.Request.Context(), currentUserID(c), c.Query("type"), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Page(c, list, total, page, pageSize)
}

type TransferRequest struct {
	ToUserID    int64  `json:"to_user_id" binding:"required,gt=0"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description" binding:"max=256"`
}

// TransferPoints POST /api/v1/points/transfer
func (h *Handler) TransferPoints(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Ledger.Transfer(c.Request.Context(), currentUserID(c), req.ToUserID, req.Amount, req.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// GetWalletBalance GET /api/v1/wallet/balance
func (h *Handler) GetWalletBalance(c *gin.Context) {
	userID := currentUserID(c)
	balance, err := h.svc.Wallet.Balance(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "balance": balance})
}

// ListWalletEntries GET /api/v1/wallet/entries
func (h *Handler) ListWalletEntries(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.svc.Wallet.ListEntries(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Page(c, list, total, page, pageSize)
}

// ListMyLiabilities GET /api/v1/liabilities?status=OPEN
func (h *Handler) ListMyLiabilities(c *gin.Context) {
	list, err := h.svc.Refund.ListLiabilities(c.Request.Context(), currentUserID(c), c.Query("status"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

// ============================================================
// 管理接口
// ============================================================

type AmountRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// AdminRecharge POST /admin/points/recharge
func (h *Handler) AdminRecharge(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.svc.Ledger.Recharge(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}

type AdjustRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required,max=200"`
}

// AdminAdjust POST /admin/points/adjust，amount 可以为负
func (h *Handler) AdminAdjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.svc.Ledger.Adjust(c.Request.Context(), req.UserID, req.Amount, req.Reason, operatorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}

// AdminTopUpWallet POST /admin/wallet/topup
func (h *Handler) AdminTopUpWallet(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	ref, err := h.svc.Wallet.TopUp(c.Request.Context(), req.UserID, req.Amount, operatorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"reference": ref})
}

// AdminGetOrder GET /admin/orders/:order_no
func (h *Handler) AdminGetOrder(c *gin.Context) {
	detail, err := h.svc.Orders.AdminGet(c.Request.Context(), c.Param("order_no"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, detail)
}

type ForceStatusRequest struct {
	OrderNos []string `json:"order_nos" binding:"required,min=1"`
	Status   string   `json:"status" binding:"required"`
	Reason   string   `json:"reason" binding:"max=256"`
}

// AdminForceStatus POST /admin/orders/status
func (h *Handler) AdminForceStatus(c *gin.Context) {
	var req ForceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	results, err := h.svc.Orders.AdminForceStatus(c.Request.Context(), req.OrderNos, req.Status, operatorID(c), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, results)
}

// AdminSettleLiabilities POST /admin/sellers/:seller_id/liabilities/settle
func (h *Handler) AdminSettleLiabilities(c *gin.Context) {
	sellerID, err := strconv.ParseInt(c.Param("seller_id"), 10, 64)
	if err != nil || sellerID <= 0 {
		response.ParamError(c, "seller_id 参数错误")
		return
	}

	result, err := h.svc.Refund.SettleLiabilities(c.Request.Context(), sellerID, operatorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminLedgerAudit GET /admin/ledger/audit
func (h *Handler) AdminLedgerAudit(c *gin.Context) {
	found, err := h.svc.Ledger.FindInconsistentAccounts(c.Request.Context(), h.cfg.Business.SweepBatchSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"inconsistent": found, "count": len(found)})
}

// AdminSweepTimeouts POST /admin/sweep/timeouts?cutoff_minutes=30
func (h *Handler) AdminSweepTimeouts(c *gin.Context) {
	cutoff, err := strconv.Atoi(c.DefaultQuery("cutoff_minutes", strconv.Itoa(h.cfg.Business.OrderTimeoutMinutes)))
	if err != nil {
		response.ParamError(c, "cutoff_minutes 参数错误")
		return
	}

	result, err := h.svc.Sweeper.SweepTimeouts(c.Request.Context(), cutoff)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminSweepAutoComplete POST /admin/sweep/auto-complete?cutoff_days=7
func (h *Handler) AdminSweepAutoComplete(c *gin.Context) {
	cutoff, err := strconv.Atoi(c.DefaultQuery("cutoff_days", strconv.Itoa(h.cfg.Business.AutoCompleteDays)))
	if err != nil {
		response.ParamError(c, "cutoff_days 参数错误")
		return
	}

	result, err := h.svc.Sweeper.SweepAutoComplete(c.Request.Context(), cutoff)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminRetryOutbox POST /admin/outbox/retry?limit=100
func (h *Handler) AdminRetryOutbox(c *gin.Context) {
	if h.outbox == nil {
		response.Error(c, response.CodeServerError, "消息投递未启用")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		response.ParamError(c, "limit 参数错误")
		return
	}

	n, err := h.outbox.RetryFailed(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}
