package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Renal37/storefront/internal/metrics"
	"github.com/Renal37/storefront/internal/models"
	"github.com/Renal37/storefront/internal/receipt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusCanceled  = "canceled"

	gatewayCurrency       = "RUB"
	gatewayVatCode        = 1
	gatewayTaxSystemCode  = 1
	gatewayPaymentMode    = "full_payment"
	gatewayRequestTimeout = 15 * time.Second
)

// PaymentRequest: данные для создания платежа по уже сохранённому заказу.
type PaymentRequest struct {
	OrderID int64
	Amount  int64
	Email   string
	Lines   []receipt.Line
}

// Payment: платёж в ответе шлюза.
type Payment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

type gatewayAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type gatewayReceiptItem struct {
	Description    string        `json:"description"`
	Quantity       string        `json:"quantity"`
	Amount         gatewayAmount `json:"amount"`
	VatCode        int           `json:"vat_code"`
	PaymentMode    string        `json:"payment_mode"`
	PaymentSubject string        `json:"payment_subject"`
}

type gatewayReceipt struct {
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	TaxSystemCode int                  `json:"tax_system_code"`
	Items         []gatewayReceiptItem `json:"items"`
}

type createPaymentRequest struct {
	Amount       gatewayAmount `json:"amount"`
	Capture      bool          `json:"capture"`
	Confirmation struct {
		Type      string `json:"type"`
		ReturnURL string `json:"return_url"`
	} `json:"confirmation"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	Receipt     gatewayReceipt    `json:"receipt"`
}

// PaymentService: HTTP-клиент платёжного шлюза, совместимого с API ЮKassa.
type PaymentService struct {
	client      *http.Client
	endpoint    string
	shopID      string
	secretKey   string
	frontendURL string
	newKey      func() string
}

func NewPaymentService(endpoint, shopID, secretKey, frontendURL string) *PaymentService {
	return &PaymentService{
		client:      &http.Client{Timeout: gatewayRequestTimeout},
		endpoint:    strings.TrimRight(endpoint, "/"),
		shopID:      shopID,
		secretKey:   secretKey,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		newKey:      uuid.NewString,
	}
}

// FormatAmount переводит копейки в строку рублей с двумя знаками после точки.
func FormatAmount(minorUnits int64) string {
	return decimal.New(minorUnits, -2).StringFixed(2)
}

func buildReceipt(email string, lines []receipt.Line) gatewayReceipt {
	var r gatewayReceipt
	r.Customer.Email = email
	r.TaxSystemCode = gatewayTaxSystemCode
	r.Items = make([]gatewayReceiptItem, 0, len(lines))

	for _, line := range lines {
		r.Items = append(r.Items, gatewayReceiptItem{
			Description:    line.Description,
			Quantity:       "1",
			Amount:         gatewayAmount{Value: FormatAmount(line.Amount), Currency: gatewayCurrency},
			VatCode:        gatewayVatCode,
			PaymentMode:    gatewayPaymentMode,
			PaymentSubject: string(line.Kind),
		})
	}

	return r
}

// CreatePayment создаёт платёж с немедленным списанием и редиректом на страницу результата.
// Каждый вызов получает новый ключ идемпотентности.
func (ps *PaymentService) CreatePayment(ctx context.Context, request PaymentRequest) (*Payment, error) {
	var body createPaymentRequest
	body.Amount = gatewayAmount{Value: FormatAmount(request.Amount), Currency: gatewayCurrency}
	body.Capture = true
	body.Confirmation.Type = "redirect"
	body.Confirmation.ReturnURL = fmt.Sprintf("%s/payment-result?order=%d", ps.frontendURL, request.OrderID)
	body.Description = fmt.Sprintf("Заказ №%d", request.OrderID)
	body.Metadata = map[string]string{"order_id": strconv.FormatInt(request.OrderID, 10)}
	body.Receipt = buildReceipt(request.Email, request.Lines)

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &models.ExternalGatewayError{Op: "create", Err: fmt.Errorf("failed to marshal payment: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ps.endpoint+"/payments", bytes.NewReader(data))
	if err != nil {
		return nil, &models.ExternalGatewayError{Op: "create", Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", ps.newKey())

	return ps.do(req, "create")
}

// GetPayment запрашивает текущее состояние платежа.
func (ps *PaymentService) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ps.endpoint+"/payments/"+paymentID, nil)
	if err != nil {
		return nil, &models.ExternalGatewayError{Op: "get", Err: fmt.Errorf("failed to create request: %w", err)}
	}

	return ps.do(req, "get")
}

func (ps *PaymentService) do(req *http.Request, op string) (*Payment, error) {
	req.SetBasicAuth(ps.shopID, ps.secretKey)

	payment, err := ps.send(req)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(op, "error").Inc()
		return nil, &models.ExternalGatewayError{Op: op, Err: err}
	}

	metrics.GatewayRequests.WithLabelValues(op, "ok").Inc()
	return payment, nil
}

func (ps *PaymentService) send(req *http.Request) (*Payment, error) {
	res, err := ps.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", req.Method, err)
	}
	defer res.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(res.Body, 1<<20)); err != nil {
		return nil, fmt.Errorf("failed to read from response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", res.StatusCode, strings.TrimSpace(buf.String()))
	}

	var payment Payment
	if err := json.Unmarshal(buf.Bytes(), &payment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
	}

	if payment.ID == "" {
		return nil, fmt.Errorf("payment id is empty")
	}

	return &payment, nil
}
