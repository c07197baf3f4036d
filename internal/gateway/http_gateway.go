package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
	"github.com/akylbek/payment-system/mobile-money-service/internal/telemetry"
)

const HTTPProviderName = "aggregator"

// HTTPGateway talks to a mobile-money aggregator over JSON/HTTP.
type HTTPGateway struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ErrorResponse is the aggregator's error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type initiateRequest struct {
	Reference     string `json:"reference"`
	OrderID       string `json:"order_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PhoneNumber   string `json:"phone_number"`
	Operator      string `json:"operator"`
	Country       string `json:"country"`
	CustomerID    string `json:"customer_id,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	ReturnURL     string `json:"return_url,omitempty"`
	WebhookURL    string `json:"webhook_url,omitempty"`
}

type initiateResponse struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

type verifyResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

type operatorsResponse struct {
	Operators []models.MobileMoneyOperator `json:"operators"`
}

func (g *HTTPGateway) Name() string {
	return HTTPProviderName
}

func (g *HTTPGateway) InitiateMobileMoneyPayment(ctx context.Context, req models.GatewayPaymentRequest) (*models.GatewayPaymentResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "gateway.initiate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", req.PaymentID), attribute.String("payment.operator", req.Operator))

	body, err := json.Marshal(initiateRequest{
		Reference:     req.PaymentID,
		OrderID:       req.OrderID,
		Amount:        req.Amount.String(),
		Currency:      req.Currency,
		PhoneNumber:   req.PhoneNumber,
		Operator:      req.Operator,
		Country:       req.Country,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		ReturnURL:     req.ReturnURL,
		WebhookURL:    req.WebhookURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	status, raw, err := g.do(ctx, http.MethodPost, g.BaseURL+"/v1/payments/mobile-money", body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		err := fmt.Errorf("gateway rejected credentials with status %d", status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if status >= 400 && status < 500 {
		var apiErr ErrorResponse
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Message == "" {
			return nil, fmt.Errorf("gateway returned status %d with unreadable body: %s", status, string(raw))
		}
		return &models.GatewayPaymentResponse{Success: false, Message: apiErr.Message, Raw: raw}, nil
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusAccepted {
		return nil, fmt.Errorf("gateway returned status %d: %s", status, string(raw))
	}

	var resp initiateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode successful response: %w", err)
	}
	if resp.TransactionID == "" {
		return nil, fmt.Errorf("gateway accepted payment without a transaction id")
	}

	return &models.GatewayPaymentResponse{
		Success:       true,
		TransactionID: resp.TransactionID,
		PaymentURL:    resp.PaymentURL,
		Message:       resp.Message,
		Raw:           raw,
	}, nil
}

func (g *HTTPGateway) VerifyPayment(ctx context.Context, transactionID string) (*models.GatewayVerification, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "gateway.verify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("gateway.transaction_id", transactionID))

	status, raw, err := g.do(ctx, http.MethodGet, g.BaseURL+"/v1/payments/"+url.PathEscape(transactionID), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d: %s", status, string(raw))
	}

	var resp verifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}

	return &models.GatewayVerification{
		TransactionID: transactionID,
		Outcome:       outcomeFromStatus(resp.Status),
		Message:       resp.Message,
		Raw:           raw,
	}, nil
}

func (g *HTTPGateway) GetAvailableOperators(ctx context.Context, country string) ([]models.MobileMoneyOperator, error) {
	endpoint := g.BaseURL + "/v1/operators?country=" + url.QueryEscape(strings.ToUpper(country))
	status, raw, err := g.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return []models.MobileMoneyOperator{}, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d: %s", status, string(raw))
	}

	var resp operatorsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode operators response: %w", err)
	}
	ops := resp.Operators
	if ops == nil {
		ops = []models.MobileMoneyOperator{}
	}
	sortByPriority(ops)
	return ops, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if g.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request to gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// outcomeFromStatus maps aggregator status strings onto the three outcomes.
// Anything unrecognised is treated as still pending.
func outcomeFromStatus(status string) models.VerificationOutcome {
	switch strings.ToLower(status) {
	case "completed", "successful", "success", "paid":
		return models.OutcomeCompleted
	case "failed", "declined", "cancelled", "canceled", "rejected":
		return models.OutcomeFailed
	default:
		return models.OutcomePending
	}
}
