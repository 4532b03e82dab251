package handler

import (
	"time"

	"payrails/internal/adapter/http/dto"
	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/pkg/apperror"
	"payrails/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler exposes balances, ledger history and wallet top-ups.
type AccountHandler struct {
	ledgerSvc ports.LedgerService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledgerSvc ports.LedgerService) *AccountHandler {
	return &AccountHandler{ledgerSvc: ledgerSvc}
}

// Balance handles GET /api/v1/accounts/:id/balance.
func (h *AccountHandler) Balance(c *gin.Context) {
	accountID := c.Param("id")
	bal, err := h.ledgerSvc.BalanceOf(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BalanceResponse{
		AccountID: accountID,
		Balance:   bal.StringFixed(domain.MinorUnits),
		Currency:  domain.DefaultCurrency,
	})
}

// Entries handles GET /api/v1/accounts/:id/entries.
func (h *AccountHandler) Entries(c *gin.Context) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entries, total, err := h.ledgerSvc.ListEntries(c.Request.Context(), c.Param("id"), q.Page, q.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.LedgerEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toLedgerEntryResponse(&entries[i]))
	}
	page, size := pageOrDefault(q.Page, q.PageSize)
	response.Paged(c, items, page, size, total)
}

// Topup handles POST /api/v1/wallets/:id/topup.
func (h *AccountHandler) Topup(c *gin.Context) {
	walletID := c.Param("id")
	if err := requireSelf(c, walletID); err != nil {
		response.Error(c, err)
		return
	}

	var req dto.TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	entry, err := h.ledgerSvc.Topup(c.Request.Context(), walletID, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toLedgerEntryResponse(entry))
}

func toLedgerEntryResponse(e *domain.LedgerEntry) dto.LedgerEntryResponse {
	resp := dto.LedgerEntryResponse{
		ID:           e.ID.String(),
		AccountID:    e.AccountID,
		Direction:    string(e.Direction),
		Amount:       e.Amount.StringFixed(domain.MinorUnits),
		BalanceAfter: e.BalanceAfter.StringFixed(domain.MinorUnits),
		Note:         e.Note,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
	if e.PaymentID != nil {
		s := e.PaymentID.String()
		resp.PaymentID = &s
	}
	return resp
}
