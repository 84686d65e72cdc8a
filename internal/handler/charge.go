package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cobranca/internal/domain"
	"cobranca/internal/gateway"
	"cobranca/internal/service"
)

// ChargeHandler handles HTTP requests for charges.
type ChargeHandler struct {
	chargeService *service.ChargeService
}

// NewChargeHandler creates a new ChargeHandler.
func NewChargeHandler(chargeService *service.ChargeService) *ChargeHandler {
	return &ChargeHandler{chargeService: chargeService}
}

// CreateChargeRequest is the HTTP request body for creating a charge.
type CreateChargeRequest struct {
	PassengerID       string          `json:"passenger_id"`
	Description       string          `json:"description,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           string          `json:"due_date"`                      // YYYY-MM-DD
	Origin            string          `json:"origin,omitempty"`              // MANUAL, AUTOMATIC
	GatewayCustomerID string          `json:"gateway_customer_id,omitempty"` // mirrors the charge at the gateway
	BillingType       string          `json:"billing_type,omitempty"`        // PIX, BOLETO, CREDIT_CARD, UNDEFINED
}

// RegisterPaymentRequest is the HTTP request body for a manual payment.
type RegisterPaymentRequest struct {
	PaymentDate string          `json:"payment_date"` // YYYY-MM-DD
	PaymentType string          `json:"payment_type"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
}

// UpdateChargeRequest is the HTTP request body for editing a charge.
type UpdateChargeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date"`
	PaymentType *string         `json:"payment_type,omitempty"`
}

// ChargeResponse is the HTTP response for charge operations.
type ChargeResponse struct {
	ID                  string  `json:"id"`
	PassengerID         string  `json:"passenger_id"`
	Description         string  `json:"description,omitempty"`
	Amount              string  `json:"amount"`
	DueDate             string  `json:"due_date"`
	PaymentDate         *string `json:"payment_date,omitempty"`
	PaymentType         *string `json:"payment_type,omitempty"`
	Status              string  `json:"status"`
	Origin              string  `json:"origin"`
	ManualPayment       bool    `json:"manual_payment"`
	ExternalReferenceID *string `json:"external_reference_id,omitempty"`
	RemindersDisabled   bool    `json:"reminders_disabled"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

// PixResponse is the HTTP response for a charge's PIX QR code.
type PixResponse struct {
	ChargeID       string `json:"charge_id"`
	EncodedImage   string `json:"encoded_image"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

// CreateCharge handles POST /v1/charges
func (h *ChargeHandler) CreateCharge(c *gin.Context) {
	var req CreateChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "invalid_request"})
		return
	}

	dueDate, ok := parseDate(c, "due_date", req.DueDate)
	if !ok {
		return
	}

	charge, err := h.chargeService.CreateCharge(c.Request.Context(), service.CreateChargeRequest{
		PassengerID:       req.PassengerID,
		Description:       req.Description,
		Amount:            req.Amount,
		DueDate:           dueDate,
		Origin:            domain.ChargeOrigin(req.Origin),
		GatewayCustomerID: req.GatewayCustomerID,
		BillingType:       gateway.BillingType(req.BillingType),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toChargeResponse(charge))
}

// GetCharge handles GET /v1/charges/:id
func (h *ChargeHandler) GetCharge(c *gin.Context) {
	charge, err := h.chargeService.GetCharge(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toChargeResponse(charge))
}

// RegisterManualPayment handles POST /v1/charges/:id/payment
func (h *ChargeHandler) RegisterManualPayment(c *gin.Context) {
	var req RegisterPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "invalid_request"})
		return
	}

	paymentDate, ok := parseDate(c, "payment_date", req.PaymentDate)
	if !ok {
		return
	}

	chargeID := c.Param("id")
	err := h.chargeService.RegisterManualPayment(c.Request.Context(), service.RegisterPaymentRequest{
		ChargeID:    chargeID,
		PaymentDate: paymentDate,
		PaymentType: domain.PaymentType(req.PaymentType),
		PaidAmount:  req.PaidAmount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondCurrent(c, chargeID)
}

// UndoPayment handles DELETE /v1/charges/:id/payment
func (h *ChargeHandler) UndoPayment(c *gin.Context) {
	chargeID := c.Param("id")
	if err := h.chargeService.UndoPayment(c.Request.Context(), chargeID); err != nil {
		respondError(c, err)
		return
	}

	h.respondCurrent(c, chargeID)
}

// UpdateChargeDetails handles PATCH /v1/charges/:id
func (h *ChargeHandler) UpdateChargeDetails(c *gin.Context) {
	var req UpdateChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "invalid_request"})
		return
	}

	dueDate, ok := parseDate(c, "due_date", req.DueDate)
	if !ok {
		return
	}

	var paymentType *domain.PaymentType
	if req.PaymentType != nil {
		pt := domain.PaymentType(*req.PaymentType)
		paymentType = &pt
	}

	chargeID := c.Param("id")
	err := h.chargeService.UpdateChargeDetails(c.Request.Context(), service.UpdateDetailsRequest{
		ChargeID:    chargeID,
		Amount:      req.Amount,
		DueDate:     dueDate,
		PaymentType: paymentType,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondCurrent(c, chargeID)
}

// DeleteCharge handles DELETE /v1/charges/:id
func (h *ChargeHandler) DeleteCharge(c *gin.Context) {
	if err := h.chargeService.DeleteCharge(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetPixQRCode handles GET /v1/charges/:id/pix
func (h *ChargeHandler) GetPixQRCode(c *gin.Context) {
	qr, err := h.chargeService.GetPixQRCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := PixResponse{
		ChargeID:     qr.ChargeID,
		EncodedImage: qr.EncodedImage,
		Payload:      qr.Payload,
	}
	if !qr.ExpirationDate.IsZero() {
		resp.ExpirationDate = qr.ExpirationDate.Format(time.RFC3339)
	}

	respondJSON(c, http.StatusOK, resp)
}

// respondCurrent answers a committed mutation with the stored charge. The
// change already happened, so a failed re-read still answers 204.
func (h *ChargeHandler) respondCurrent(c *gin.Context, chargeID string) {
	charge, err := h.chargeService.GetCharge(c.Request.Context(), chargeID)
	if err != nil {
		_ = c.Error(err)
		c.Status(http.StatusNoContent)
		return
	}

	respondJSON(c, http.StatusOK, toChargeResponse(charge))
}

func parseDate(c *gin.Context, field, value string) (time.Time, bool) {
	if value == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: field + " is required", Code: "invalid_request"})
		return time.Time{}, false
	}

	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: field + " must be YYYY-MM-DD", Code: "invalid_request"})
		return time.Time{}, false
	}

	return t, true
}

func toChargeResponse(charge *domain.Charge) ChargeResponse {
	resp := ChargeResponse{
		ID:                  charge.ID,
		PassengerID:         charge.PassengerID,
		Description:         charge.Description,
		Amount:              charge.Amount.StringFixed(2),
		DueDate:             charge.DueDate.Format(time.DateOnly),
		Status:              string(charge.Status),
		Origin:              string(charge.Origin),
		ManualPayment:       charge.ManualPayment,
		ExternalReferenceID: charge.ExternalReferenceID,
		RemindersDisabled:   charge.RemindersDisabled,
		CreatedAt:           charge.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           charge.UpdatedAt.Format(time.RFC3339),
	}

	if charge.PaymentDate != nil {
		d := charge.PaymentDate.Format(time.DateOnly)
		resp.PaymentDate = &d
	}
	if charge.PaymentType != nil {
		pt := string(*charge.PaymentType)
		resp.PaymentType = &pt
	}

	return resp
}
