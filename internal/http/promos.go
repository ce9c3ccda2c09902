package router

import (
	"errors"
	"net/http"

	"github.com/Renal37/storefront/internal/middlewares"
	"github.com/Renal37/storefront/internal/models"
	"github.com/Renal37/storefront/internal/services"
	"github.com/go-chi/chi/v5"
)

func CheckPromo(w http.ResponseWriter, r *http.Request) {
	promoService := middlewares.GetServiceFromContext[models.PromoService](w, r, middlewares.PromoServiceKey)
	if promoService == nil {
		return
	}

	promo, err := (*promoService).CheckPromo(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, services.ErrPromoExpired) {
			http.Error(w, "Срок действия промокода истёк", http.StatusGone)
			return
		}
		writeError(w, r, err, "проверке промокода")
		return
	}

	middlewares.EncodeJSONResponse(w, http.StatusOK, promo)
}
