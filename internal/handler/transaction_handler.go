package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhsmarket/internal/service/transaction"
)

type TransactionHandler struct {
	transactions *transaction.Service
	logger       *zap.Logger
}

func NewTransactionHandler(transactions *transaction.Service, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, logger: logger}
}

// List handles GET /api/transactions?type=&status=; admins may pass user.
func (h *TransactionHandler) List(c *gin.Context) {
	actor := actorFrom(c)
	userID := actor.UserID
	if actor.IsAdmin() {
		userID = c.Query("user")
	}

	items, err := h.transactions.List(c.Request.Context(), transaction.Filter{
		UserID: userID,
		Type:   c.Query("type"),
		Status: c.Query("status"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// Purchase handles POST /api/transactions/purchase
func (h *TransactionHandler) Purchase(c *gin.Context) {
	var req struct {
		ArtworkID string `json:"artworkId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "artworkId is required")
		return
	}

	res, err := h.transactions.Purchase(c.Request.Context(), c.GetString(CtxUserID), req.ArtworkID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// Deposit handles POST /api/transactions/deposit
func (h *TransactionHandler) Deposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "amount is required")
		return
	}

	tx, err := h.transactions.Deposit(c.Request.Context(), c.GetString(CtxUserID), req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// Withdraw handles POST /api/transactions/withdraw
func (h *TransactionHandler) Withdraw(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "amount is required")
		return
	}

	tx, err := h.transactions.Withdraw(c.Request.Context(), c.GetString(CtxUserID), req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// Refund handles POST /api/admin/transactions/:id/refund
func (h *TransactionHandler) Refund(c *gin.Context) {
	rows, err := h.transactions.Refund(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// Invoices handles GET /api/invoices
func (h *TransactionHandler) Invoices(c *gin.Context) {
	items, err := h.transactions.Invoices(c.Request.Context(), c.GetString(CtxUserID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// Wallet handles GET /api/wallet
func (h *TransactionHandler) Wallet(c *gin.Context) {
	w, err := h.transactions.Wallet(c.Request.Context(), c.GetString(CtxUserID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
