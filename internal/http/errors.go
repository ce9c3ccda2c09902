package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// orderIDFromURL читает положительный номер заказа из пути. При ошибке отвечает 400.
func orderIDFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || orderID <= 0 {
		http.Error(w, "Некорректный номер заказа", http.StatusBadRequest)
		return 0, false
	}
	return orderID, true
}

// writeError переводит типизированные ошибки сервисов в HTTP-ответ.
func writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		validationErr *models.ValidationError
		notFoundErr   *models.NotFoundError
		conflictErr   *models.ConflictError
		stockErr      *models.StockInsufficientError
		authErr       *models.AuthenticationError
		gatewayErr    *models.ExternalGatewayError
	)

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, notFoundErr.Error(), http.StatusNotFound)
	case errors.As(err, &conflictErr):
		http.Error(w, conflictErr.Error(), http.StatusConflict)
	case errors.As(err, &stockErr):
		http.Error(w, stockErr.Error(), http.StatusConflict)
	case errors.As(err, &authErr):
		http.Error(w, authErr.Error(), http.StatusBadRequest)
	case errors.As(err, &gatewayErr):
		http.Error(w, "Платёжный шлюз недоступен, попробуйте позже", http.StatusBadGateway)
	default:
		logger.Log.Error("request failed", zap.String("uri", r.RequestURI), zap.String("action", action), zap.Error(err))
		http.Error(w, fmt.Sprintf("Произошла ошибка при %s", action), http.StatusInternalServerError)
	}
}
