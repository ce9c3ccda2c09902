package router

import (
	"errors"
	"net/http"

	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/middlewares"
	"github.com/Renal37/storefront/internal/models"
	"go.uber.org/zap"
)

const signatureHeader = "Content-HMAC-SHA256"

// HandlePaymentWebhook отвечает 200 на принятое уведомление, 400 на неверную подпись
// или тело и 500, если шлюзу стоит повторить попытку.
func HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := middlewares.GetRawBody(w, r)
	if !ok {
		return
	}

	webhookService := middlewares.GetServiceFromContext[models.WebhookService](w, r, middlewares.WebhookServiceKey)
	if webhookService == nil {
		return
	}

	err := (*webhookService).HandleNotification(r.Context(), body, r.Header.Get(signatureHeader))
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	var (
		authErr       *models.AuthenticationError
		validationErr *models.ValidationError
	)
	switch {
	case errors.As(err, &authErr):
		http.Error(w, "Неверная подпись", http.StatusBadRequest)
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	default:
		logger.Log.Error("webhook processing failed", zap.Error(err))
		http.Error(w, "Не удалось обработать уведомление", http.StatusInternalServerError)
	}
}
