package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
	"github.com/akylbek/payment-system/mobile-money-service/internal/telemetry"
)

// PaymentService is the part of the service layer the HTTP surface needs.
type PaymentService interface {
	InitiatePayment(ctx context.Context, req models.InitiatePaymentRequest) (*models.InitiatePaymentResponse, error)
	GetPaymentStatus(ctx context.Context, id string) (*models.MobileMoneyPayment, error)
	GetOperatorsByCountry(ctx context.Context, country string) ([]models.MobileMoneyOperator, error)
	HandleGatewayCallback(ctx context.Context, provider, transactionID string) (*models.MobileMoneyPayment, error)
}

type PaymentHandler struct {
	service PaymentService
}

func NewPaymentHandler(service PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Warn("Invalid payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.InitiatePaymentResponse{Success: false, Message: err.Error()})
		return
	}

	resp, err := h.service.InitiatePayment(c.Request.Context(), req)
	if err != nil {
		telemetry.Logger.Error("Failed to initiate payment",
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, models.InitiatePaymentResponse{Success: false, Message: "Failed to create payment"})
		return
	}

	switch {
	case resp.Success:
		c.JSON(http.StatusCreated, resp)
	case resp.Data == nil:
		// Rejected before anything was stored.
		c.JSON(http.StatusBadRequest, resp)
	case resp.Retryable:
		c.JSON(http.StatusBadGateway, resp)
	default:
		c.JSON(http.StatusUnprocessableEntity, resp)
	}
}

func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	id := c.Param("id")

	payment, err := h.service.GetPaymentStatus(c.Request.Context(), id)
	if err != nil {
		telemetry.Logger.Error("Failed to fetch payment", zap.String("payment_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch payment"})
		return
	}
	if payment == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Payment not found"})
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) GetOperators(c *gin.Context) {
	country := c.Param("country")

	ops, err := h.service.GetOperatorsByCountry(c.Request.Context(), country)
	if err != nil {
		telemetry.Logger.Error("Failed to fetch operators", zap.String("country", country), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to fetch operators"})
		return
	}

	c.JSON(http.StatusOK, ops)
}

// MockCheckout stands in for the aggregator's hosted payment page when the
// mock gateway is configured.
func (h *PaymentHandler) MockCheckout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"transaction_id": c.Param("transaction_id"),
		"status":         "pending",
		"message":        "Approve the payment request on your phone to complete it",
	})
}

type gatewayCallback struct {
	TransactionID string `json:"transaction_id" binding:"required"`
}

// GatewayWebhook accepts a gateway notification. Only the transaction id is
// read from the body; the status is always re-fetched from the gateway.
func (h *PaymentHandler) GatewayWebhook(c *gin.Context) {
	provider := c.Param("provider")

	var body gatewayCallback
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	payment, err := h.service.HandleGatewayCallback(c.Request.Context(), provider, body.TransactionID)
	if err != nil {
		telemetry.Logger.Error("Failed to process gateway callback",
			zap.String("provider", provider),
			zap.String("gateway_transaction_id", body.TransactionID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process callback"})
		return
	}
	if payment == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Unknown transaction"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "payment_id": payment.ID, "status": payment.Status})
}
