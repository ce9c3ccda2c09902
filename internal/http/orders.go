package router

import (
	"net/http"

	"github.com/Renal37/storefront/internal/middlewares"
	"github.com/Renal37/storefront/internal/models"
)

func CreateOrder(w http.ResponseWriter, r *http.Request) {
	request, ok := middlewares.GetParsedJSONData[models.OrderRequest](w, r)
	if !ok {
		return
	}

	orderService := middlewares.GetServiceFromContext[models.OrderService](w, r, middlewares.OrderServiceKey)
	if orderService == nil {
		return
	}

	created, err := (*orderService).CreateOrder(r.Context(), request)
	if err != nil {
		writeError(w, r, err, "оформлении заказа")
		return
	}

	middlewares.EncodeJSONResponse(w, http.StatusCreated, created)
}

func GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	orderService := middlewares.GetServiceFromContext[models.OrderService](w, r, middlewares.OrderServiceKey)
	if orderService == nil {
		return
	}

	order, err := (*orderService).GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err, "получении заказа")
		return
	}

	middlewares.EncodeJSONResponse(w, http.StatusOK, order)
}

// ReportStatus принимает отчёт клиента о результате оплаты.
func ReportStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	report, ok := middlewares.GetParsedJSONData[models.StatusReport](w, r)
	if !ok {
		return
	}

	if report.Status == nil {
		http.Error(w, "Поле status обязательно", http.StatusBadRequest)
		return
	}

	settlementService := middlewares.GetServiceFromContext[models.SettlementService](w, r, middlewares.SettlementServiceKey)
	if settlementService == nil {
		return
	}

	if err := (*settlementService).ReportClientStatus(r.Context(), orderID, *report.Status); err != nil {
		writeError(w, r, err, "обновлении статуса заказа")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func SetTelegram(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	contact, ok := middlewares.GetParsedJSONData[models.TelegramContact](w, r)
	if !ok {
		return
	}

	if contact.Telegram == nil {
		http.Error(w, "Поле telegram обязательно", http.StatusBadRequest)
		return
	}

	orderService := middlewares.GetServiceFromContext[models.OrderService](w, r, middlewares.OrderServiceKey)
	if orderService == nil {
		return
	}

	if err := (*orderService).SetTelegram(r.Context(), orderID, *contact.Telegram); err != nil {
		writeError(w, r, err, "сохранении telegram")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CompleteOrder отмечает выдачу оплаченного заказа. Доступно только администратору.
func CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	settlementService := middlewares.GetServiceFromContext[models.SettlementService](w, r, middlewares.SettlementServiceKey)
	if settlementService == nil {
		return
	}

	if err := (*settlementService).Complete(r.Context(), orderID); err != nil {
		writeError(w, r, err, "завершении заказа")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
