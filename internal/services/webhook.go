package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/metrics"
	"github.com/Renal37/storefront/internal/models"
	"go.uber.org/zap"
)

// WebhookVerification: режим проверки подписи уведомлений шлюза.
type WebhookVerification string

const (
	WebhookVerificationRequired WebhookVerification = "required"
	WebhookVerificationDisabled WebhookVerification = "disabled"
)

const (
	eventPaymentSucceeded = "payment.succeeded"
	eventPaymentCanceled  = "payment.canceled"
)

var (
	ErrWebhookSecretMissing = errors.New("проверка подписи включена, но WEBHOOK_SECRET не задан")
	ErrUnknownVerification  = errors.New("неизвестный режим проверки подписи")
)

type webhookSettlement interface {
	MarkPaid(ctx context.Context, orderID int64, source models.SettlementSource) error
	Cancel(ctx context.Context, orderID int64, source models.SettlementSource) error
}

// WebhookService проверяет и применяет уведомления платёжного шлюза.
type WebhookService struct {
	settlement webhookSettlement
	secret     []byte
	verify     bool
}

// NewWebhookService возвращает ошибку, если включена проверка подписи без секрета.
func NewWebhookService(settlement webhookSettlement, mode WebhookVerification, secret string) (*WebhookService, error) {
	switch mode {
	case WebhookVerificationRequired:
		if secret == "" {
			return nil, ErrWebhookSecretMissing
		}
	case WebhookVerificationDisabled:
		logger.Log.Warn("WEBHOOK SIGNATURE VERIFICATION IS DISABLED: any caller can mark orders paid")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerification, mode)
	}

	return &WebhookService{
		settlement: settlement,
		secret:     []byte(secret),
		verify:     mode == WebhookVerificationRequired,
	}, nil
}

// Sign возвращает base64(HMAC-SHA256(secret, body)).
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись за постоянное время.
func VerifySignature(secret, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}

type notification struct {
	Event  string `json:"event"`
	Object struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Metadata struct {
			OrderID json.RawMessage `json:"order_id"`
		} `json:"metadata"`
	} `json:"object"`
}

// orderID принимает order_id и строкой, и числом.
func (n notification) orderID() (int64, bool) {
	raw := n.Object.Metadata.OrderID
	if len(raw) == 0 {
		return 0, false
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}

	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// HandleNotification проверяет подпись и переводит заказ по событию платежа.
// Неизвестные события и уведомления без номера заказа подтверждаются без изменений.
func (ws *WebhookService) HandleNotification(ctx context.Context, body []byte, signature string) error {
	if ws.verify && !VerifySignature(ws.secret, body, signature) {
		metrics.WebhookRejected.Inc()
		logger.Log.Warn("webhook signature mismatch")
		return &models.AuthenticationError{Reason: "подпись уведомления не совпадает"}
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return &models.ValidationError{Field: "body", Message: fmt.Sprintf("некорректный JSON: %s", err.Error())}
	}

	orderID, ok := n.orderID()
	if !ok {
		logger.Log.Warn("webhook without order_id, ignored", zap.String("event", n.Event))
		return nil
	}

	var err error
	switch n.Event {
	case eventPaymentSucceeded:
		err = ws.settlement.MarkPaid(ctx, orderID, models.SourceWebhook)
	case eventPaymentCanceled:
		err = ws.settlement.Cancel(ctx, orderID, models.SourceWebhook)
	default:
		logger.Log.Info("webhook event skipped", zap.String("event", n.Event), zap.Int64("orderID", orderID))
		return nil
	}

	var notFoundErr *models.NotFoundError
	if errors.As(err, &notFoundErr) {
		logger.Log.Warn("webhook for unknown order, acknowledged", zap.Int64("orderID", orderID), zap.String("event", n.Event))
		return nil
	}

	return err
}
