package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"warnet/backend/internal/service"
)

type BillingHandler struct {
	billingService *service.BillingService
}

type addSessionRequest struct {
	Name      string `json:"name"`
	PackageID string `json:"packageId"`
}

type paymentRequest struct {
	Amount        int    `json:"amount"`
	PaymentMethod string `json:"paymentMethod"`
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

func (h *BillingHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.billingService.Status())
}

func (h *BillingHandler) Packages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": h.billingService.Packages()})
}

func (h *BillingHandler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.billingService.Dashboard())
}

func (h *BillingHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.billingService.ListSessions()})
}

func (h *BillingHandler) Refresh(c *gin.Context) {
	sessions, apiErr := h.billingService.Refresh(c.Request.Context())
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *BillingHandler) GetSession(c *gin.Context) {
	session, apiErr := h.billingService.GetSession(c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *BillingHandler) AddSession(c *gin.Context) {
	var req addSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	session, apiErr := h.billingService.AddSession(c.Request.Context(), req.Name, req.PackageID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *BillingHandler) ExtendSession(c *gin.Context) {
	var req service.ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	session, apiErr := h.billingService.ExtendSession(c.Request.Context(), c.Param("id"), req)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *BillingHandler) CompleteSession(c *gin.Context) {
	session, apiErr := h.billingService.CompleteSession(c.Request.Context(), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *BillingHandler) RecordPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	payment, apiErr := h.billingService.RecordPayment(c.Request.Context(), c.Param("id"), req.Amount, req.PaymentMethod)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": payment})
}

func (h *BillingHandler) FinalizeTransaction(c *gin.Context) {
	result, apiErr := h.billingService.FinalizeTransaction(c.Request.Context(), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *BillingHandler) RemoveSession(c *gin.Context) {
	if apiErr := h.billingService.RemoveSession(c.Request.Context(), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *BillingHandler) TimerState(c *gin.Context) {
	state, apiErr := h.billingService.TimerState(c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": state})
}

func (h *BillingHandler) PauseTimer(c *gin.Context) {
	state, apiErr := h.billingService.PauseTimer(c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": state})
}

func (h *BillingHandler) ResumeTimer(c *gin.Context) {
	state, apiErr := h.billingService.ResumeTimer(c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": state})
}

func (h *BillingHandler) PaymentView(c *gin.Context) {
	view, apiErr := h.billingService.PaymentView(c.Param("sessionId"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *BillingHandler) Receipt(c *gin.Context) {
	pdf, filename, apiErr := h.billingService.Receipt(c.Param("sessionId"), c.Query("method"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *BillingHandler) History(c *gin.Context) {
	entries, apiErr := h.billingService.History(c.Request.Context())
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *BillingHandler) DeleteHistoryEntry(c *gin.Context) {
	if apiErr := h.billingService.DeleteHistoryEntry(c.Request.Context(), c.Param("kind"), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}
