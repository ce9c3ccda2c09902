package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Renal37/storefront/internal/models"
	mock_models "github.com/Renal37/storefront/internal/models/mocks"
	"github.com/Renal37/storefront/internal/services"
	"github.com/Renal37/storefront/internal/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
)

type routeTestCase struct {
	testName        string
	methodName      string
	targetURL       string
	headers         map[string]string
	body            func() io.Reader
	test            func(t *testing.T)
	expectedCode    int
	expectedMessage string
}

func runRouteTests(t *testing.T, testServer *httptest.Server, testCases []routeTestCase) {
	t.Helper()

	for _, tc := range testCases {
		t.Run(tc.testName, func(t *testing.T) {
			var body io.Reader

			if tc.body != nil {
				body = tc.body()
			}

			if tc.test != nil {
				tc.test(t)
			}

			headers := tc.headers
			if headers == nil {
				headers = map[string]string{"Content-Type": "application/json"}
			}

			res, mes := utils.TestRequest(
				t,
				testServer,
				tc.methodName,
				tc.targetURL,
				headers,
				body,
			)
			res.Body.Close()

			assert.Equal(t, tc.expectedCode, res.StatusCode)
			assert.Equal(t, tc.expectedMessage, mes)
		})
	}
}

func jsonBody(data interface{}) func() io.Reader {
	return func() io.Reader {
		encoded, _ := json.Marshal(data)
		return bytes.NewBuffer(encoded)
	}
}

func validOrderRequest() models.OrderRequest {
	return models.OrderRequest{
		FullName:       "Иван Петров",
		Email:          "ivan@example.com",
		Phone:          "+79990000000",
		ShippingMethod: models.ShippingPickup,
		Items:          []models.OrderItem{{ProductID: 1, Size: "M", Quantity: 2}},
		AgreePolicy:    true,
	}
}

func TestCreateOrderRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	orderServiceMock := mock_models.NewMockOrderService(ctrl)

	testServer := httptest.NewServer(
		New(Config{}, nil, orderServiceMock, nil, nil, nil).get(),
	)
	defer testServer.Close()

	createdAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	runRouteTests(t, testServer, []routeTestCase{
		{
			testName:        "Should reject request without JSON content type",
			methodName:      "POST",
			targetURL:       "/api/orders/",
			headers:         map[string]string{"Content-Type": "text/plain"},
			body:            jsonBody(validOrderRequest()),
			expectedCode:    http.StatusUnsupportedMediaType,
			expectedMessage: "Тип контента не является application/json\n",
		},
		{
			testName:        "Should return a validation error due to missing body",
			methodName:      "POST",
			targetURL:       "/api/orders/",
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Ошибка при разборе данных JSON: unexpected end of JSON input\n",
		},
		{
			testName:   "Should return validation error from service",
			methodName: "POST",
			targetURL:  "/api/orders/",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
					Return(nil, &models.ValidationError{Field: "email", Message: "некорректный email"})
			},
			body:            jsonBody(validOrderRequest()),
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "некорректное поле email: некорректный email\n",
		},
		{
			testName:   "Should return conflict for already used promo",
			methodName: "POST",
			targetURL:  "/api/orders/",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
					Return(nil, &models.ConflictError{Reason: "промокод уже использован", Err: services.ErrPromoAlreadyUsed})
			},
			body:            jsonBody(validOrderRequest()),
			expectedCode:    http.StatusConflict,
			expectedMessage: "конфликт: промокод уже использован\n",
		},
		{
			testName:   "Should return bad gateway when payment can't be created",
			methodName: "POST",
			targetURL:  "/api/orders/",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
					Return(nil, &models.ExternalGatewayError{Op: "create", Err: errors.New("timeout")})
			},
			body:            jsonBody(validOrderRequest()),
			expectedCode:    http.StatusBadGateway,
			expectedMessage: "Платёжный шлюз недоступен, попробуйте позже\n",
		},
		{
			testName:   "Should hide unexpected errors",
			methodName: "POST",
			targetURL:  "/api/orders/",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
					Return(nil, errors.New("connection reset"))
			},
			body:            jsonBody(validOrderRequest()),
			expectedCode:    http.StatusInternalServerError,
			expectedMessage: "Произошла ошибка при оформлении заказа\n",
		},
		{
			testName:   "Should accept coords as [lat, lng]",
			methodName: "POST",
			targetURL:  "/api/orders/",
			test: func(t *testing.T) {
				expected := validOrderRequest()
				expected.ShippingMethod = models.ShippingMap
				expected.Address = "Невский проспект, 1"
				expected.Coords = &models.Coords{Lat: 59.93, Lng: 30.33}

				orderServiceMock.EXPECT().CreateOrder(gomock.Any(), expected).
					Return(&models.CreatedOrder{
						ID:              43,
						CreatedAt:       utils.RFC3339Date{Time: createdAt},
						Total:           2449,
						ConfirmationURL: "https://pay.example/confirm/43",
					}, nil)
			},
			body: func() io.Reader {
				return strings.NewReader(`{"full_name":"Иван Петров","email":"ivan@example.com","phone":"+79990000000",` +
					`"shipping_method":"map","address":"Невский проспект, 1","coords":[59.93,30.33],` +
					`"items":[{"product_id":1,"size":"M","quantity":2}],"agree_policy":true}`)
			},
			expectedCode:    http.StatusCreated,
			expectedMessage: `{"orderId":43,"createdAt":"2024-05-01T12:00:00Z","total":2449,"confirmationUrl":"https://pay.example/confirm/43"}`,
		},
		{
			testName:        "Should reject coords array of wrong length",
			methodName:      "POST",
			targetURL:       "/api/orders/",
			body:            func() io.Reader { return strings.NewReader(`{"coords":[59.93]}`) },
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Ошибка при разборе данных JSON: координаты задаются как [lat, lng] или {\"lat\", \"lng\"}\n",
		},
		{
			testName:   "Should create order",
			methodName: "POST",
			targetURL:  "/api/orders/",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().CreateOrder(gomock.Any(), validOrderRequest()).
					Return(&models.CreatedOrder{
						ID:              42,
						CreatedAt:       utils.RFC3339Date{Time: createdAt},
						Total:           2449,
						ConfirmationURL: "https://pay.example/confirm/42",
					}, nil)
			},
			body:            jsonBody(validOrderRequest()),
			expectedCode:    http.StatusCreated,
			expectedMessage: `{"orderId":42,"createdAt":"2024-05-01T12:00:00Z","total":2449,"confirmationUrl":"https://pay.example/confirm/42"}`,
		},
	})
}

func TestGetOrderRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	orderServiceMock := mock_models.NewMockOrderService(ctrl)

	testServer := httptest.NewServer(
		New(Config{}, nil, orderServiceMock, nil, nil, nil).get(),
	)
	defer testServer.Close()

	telegram := "buyer_one"

	runRouteTests(t, testServer, []routeTestCase{
		{
			testName:        "Should reject non numeric order id",
			methodName:      "GET",
			targetURL:       "/api/orders/abc",
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Некорректный номер заказа\n",
		},
		{
			testName:        "Should reject zero order id",
			methodName:      "GET",
			targetURL:       "/api/orders/0",
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Некорректный номер заказа\n",
		},
		{
			testName:   "Should return not found",
			methodName: "GET",
			targetURL:  "/api/orders/5",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().GetOrder(gomock.Any(), int64(5)).
					Return(nil, &models.NotFoundError{Entity: "заказ", ID: "5"})
			},
			expectedCode:    http.StatusNotFound,
			expectedMessage: "заказ 5 не найден\n",
		},
		{
			testName:   "Should return order status",
			methodName: "GET",
			targetURL:  "/api/orders/7",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().GetOrder(gomock.Any(), int64(7)).
					Return(&models.OrderView{Status: models.StatusPaid, Total: 2449, Telegram: &telegram}, nil)
			},
			expectedCode:    http.StatusOK,
			expectedMessage: `{"status":"paid","total":2449,"telegram":"buyer_one"}`,
		},
	})
}

func TestReportStatusRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	settlementServiceMock := mock_models.NewMockSettlementService(ctrl)

	testServer := httptest.NewServer(
		New(Config{}, nil, nil, settlementServiceMock, nil, nil).get(),
	)
	defer testServer.Close()

	runRouteTests(t, testServer, []routeTestCase{
		{
			testName:        "Should require status field",
			methodName:      "POST",
			targetURL:       "/api/orders/3/status",
			body:            jsonBody(map[string]string{}),
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Поле status обязательно\n",
		},
		{
			testName:   "Should reject unsupported status",
			methodName: "POST",
			targetURL:  "/api/orders/3/status",
			test: func(t *testing.T) {
				settlementServiceMock.EXPECT().ReportClientStatus(gomock.Any(), int64(3), models.StatusCompleted).
					Return(&models.ValidationError{Field: "status", Message: "допустимы paid и cancelled"})
			},
			body:            jsonBody(map[string]string{"status": "completed"}),
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "некорректное поле status: допустимы paid и cancelled\n",
		},
		{
			testName:   "Should return conflict when stock runs out",
			methodName: "POST",
			targetURL:  "/api/orders/3/status",
			test: func(t *testing.T) {
				settlementServiceMock.EXPECT().ReportClientStatus(gomock.Any(), int64(3), models.StatusPaid).
					Return(&models.StockInsufficientError{ProductID: 1, Size: "M", Requested: 2, Available: 1})
			},
			body:            jsonBody(map[string]string{"status": "paid"}),
			expectedCode:    http.StatusConflict,
			expectedMessage: "недостаточно товара 1/M: запрошено 2, доступно 1\n",
		},
		{
			testName:   "Should accept paid report",
			methodName: "POST",
			targetURL:  "/api/orders/3/status",
			test: func(t *testing.T) {
				settlementServiceMock.EXPECT().ReportClientStatus(gomock.Any(), int64(3), models.StatusPaid).Return(nil)
			},
			body:            jsonBody(map[string]string{"status": "paid"}),
			expectedCode:    http.StatusOK,
			expectedMessage: "",
		},
	})
}

func TestSetTelegramRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	orderServiceMock := mock_models.NewMockOrderService(ctrl)

	testServer := httptest.NewServer(
		New(Config{}, nil, orderServiceMock, nil, nil, nil).get(),
	)
	defer testServer.Close()

	runRouteTests(t, testServer, []routeTestCase{
		{
			testName:        "Should require telegram field",
			methodName:      "PATCH",
			targetURL:       "/api/orders/9/telegram",
			body:            jsonBody(map[string]string{}),
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Поле telegram обязательно\n",
		},
		{
			testName:   "Should return not found when order isn't paid",
			methodName: "PATCH",
			targetURL:  "/api/orders/9/telegram",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().SetTelegram(gomock.Any(), int64(9), "@buyer_one").
					Return(&models.NotFoundError{Entity: "оплаченный заказ без telegram", ID: "9"})
			},
			body:            jsonBody(map[string]string{"telegram": "@buyer_one"}),
			expectedCode:    http.StatusNotFound,
			expectedMessage: "оплаченный заказ без telegram 9 не найден\n",
		},
		{
			testName:   "Should save telegram",
			methodName: "PATCH",
			targetURL:  "/api/orders/9/telegram",
			test: func(t *testing.T) {
				orderServiceMock.EXPECT().SetTelegram(gomock.Any(), int64(9), "@buyer_one").Return(nil)
			},
			body:            jsonBody(map[string]string{"telegram": "@buyer_one"}),
			expectedCode:    http.StatusNoContent,
			expectedMessage: "",
		},
	})
}

func TestPaymentWebhookRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	webhookServiceMock := mock_models.NewMockWebhookService(ctrl)

	testServer := httptest.NewServer(
		New(Config{}, nil, nil, nil, webhookServiceMock, nil).get(),
	)
	defer testServer.Close()

	payload := `{"event":"payment.succeeded","object":{"id":"pay-1","metadata":{"order_id":"12"}}}`
	headers := map[string]string{"Content-Type": "application/json", signatureHeader: "signature"}

	runRouteTests(t, testServer, []routeTestCase{
		{
			testName:   "Should reject invalid signature",
			methodName: "POST",
			targetURL:  "/api/webhooks/payment-gateway",
			headers:    headers,
			test: func(t *testing.T) {
				webhookServiceMock.EXPECT().HandleNotification(gomock.Any(), []byte(payload), "signature").
					Return(&models.AuthenticationError{Reason: "подпись не совпадает"})
			},
			body:            func() io.Reader { return strings.NewReader(payload) },
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Неверная подпись\n",
		},
		{
			testName:   "Should reject malformed body",
			methodName: "POST",
			targetURL:  "/api/webhooks/payment-gateway",
			headers:    headers,
			test: func(t *testing.T) {
				webhookServiceMock.EXPECT().HandleNotification(gomock.Any(), []byte("{"), "signature").
					Return(&models.ValidationError{Field: "body", Message: "некорректный JSON"})
			},
			body:            func() io.Reader { return strings.NewReader("{") },
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "некорректное поле body: некорректный JSON\n",
		},
		{
			testName:   "Should ask gateway to retry on storage failure",
			methodName: "POST",
			targetURL:  "/api/webhooks/payment-gateway",
			headers:    headers,
			test: func(t *testing.T) {
				webhookServiceMock.EXPECT().HandleNotification(gomock.Any(), []byte(payload), "signature").
					Return(errors.New("connection refused"))
			},
			body:            func() io.Reader { return strings.NewReader(payload) },
			expectedCode:    http.StatusInternalServerError,
			expectedMessage: "Не удалось обработать уведомление\n",
		},
		{
			testName:   "Should acknowledge notification",
			methodName: "POST",
			targetURL:  "/api/webhooks/payment-gateway",
			headers:    headers,
			test: func(t *testing.T) {
				webhookServiceMock.EXPECT().HandleNotification(gomock.Any(), []byte(payload), "signature").Return(nil)
			},
			body:            func() io.Reader { return strings.NewReader(payload) },
			expectedCode:    http.StatusOK,
			expectedMessage: "",
		},
	})
}

func TestCheckPromoRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	promoServiceMock := mock_models.NewMockPromoService(ctrl)

	testServer := httptest.NewServer(
		New(Config{}, nil, nil, nil, nil, promoServiceMock).get(),
	)
	defer testServer.Close()

	runRouteTests(t, testServer, []routeTestCase{
		{
			testName:   "Should return not found for unknown promo",
			methodName: "GET",
			targetURL:  "/api/promos/NOPE",
			test: func(t *testing.T) {
				promoServiceMock.EXPECT().CheckPromo(gomock.Any(), "NOPE").
					Return(nil, &models.NotFoundError{Entity: "промокод", ID: "NOPE"})
			},
			expectedCode:    http.StatusNotFound,
			expectedMessage: "промокод NOPE не найден\n",
		},
		{
			testName:   "Should return gone for expired promo",
			methodName: "GET",
			targetURL:  "/api/promos/OLD",
			test: func(t *testing.T) {
				promoServiceMock.EXPECT().CheckPromo(gomock.Any(), "OLD").
					Return(nil, &models.ConflictError{Reason: "срок действия промокода истёк", Err: services.ErrPromoExpired})
			},
			expectedCode:    http.StatusGone,
			expectedMessage: "Срок действия промокода истёк\n",
		},
		{
			testName:   "Should return conflict for used single-use promo",
			methodName: "GET",
			targetURL:  "/api/promos/ONCE",
			test: func(t *testing.T) {
				promoServiceMock.EXPECT().CheckPromo(gomock.Any(), "ONCE").
					Return(nil, &models.ConflictError{Reason: "промокод уже использован", Err: services.ErrPromoAlreadyUsed})
			},
			expectedCode:    http.StatusConflict,
			expectedMessage: "конфликт: промокод уже использован\n",
		},
		{
			testName:   "Should return discount",
			methodName: "GET",
			targetURL:  "/api/promos/SALE10",
			test: func(t *testing.T) {
				promoServiceMock.EXPECT().CheckPromo(gomock.Any(), "SALE10").
					Return(&models.PromoView{DiscountPercent: 10}, nil)
			},
			expectedCode:    http.StatusOK,
			expectedMessage: `{"discount_percent":10}`,
		},
	})
}

func TestCompleteOrderRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	jwtServiceMock := mock_models.NewMockJWTService(ctrl)
	settlementServiceMock := mock_models.NewMockSettlementService(ctrl)

	testServer := httptest.NewServer(
		New(Config{}, jwtServiceMock, nil, settlementServiceMock, nil, nil).get(),
	)
	defer testServer.Close()

	adminToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "operator", "role": "admin"})
	bearer := map[string]string{"Authorization": "Bearer token"}

	runRouteTests(t, testServer, []routeTestCase{
		{
			testName:        "Should require authorization header",
			methodName:      "POST",
			targetURL:       "/api/admin/orders/4/complete",
			headers:         map[string]string{},
			expectedCode:    http.StatusUnauthorized,
			expectedMessage: "Требуется заголовок Authorization\n",
		},
		{
			testName:        "Should require bearer scheme",
			methodName:      "POST",
			targetURL:       "/api/admin/orders/4/complete",
			headers:         map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			expectedCode:    http.StatusUnauthorized,
			expectedMessage: "Ожидается токен Bearer\n",
		},
		{
			testName:   "Should reject expired token",
			methodName: "POST",
			targetURL:  "/api/admin/orders/4/complete",
			headers:    bearer,
			test: func(t *testing.T) {
				jwtServiceMock.EXPECT().ValidateToken("token").Return(nil, services.ErrTokenIsExpired)
			},
			expectedCode:    http.StatusUnauthorized,
			expectedMessage: "Токен истёк\n",
		},
		{
			testName:   "Should forbid non admin token",
			methodName: "POST",
			targetURL:  "/api/admin/orders/4/complete",
			headers:    bearer,
			test: func(t *testing.T) {
				jwtServiceMock.EXPECT().ValidateToken("token").Return(nil, services.ErrTokenNotAdmin)
			},
			expectedCode:    http.StatusForbidden,
			expectedMessage: "Недостаточно прав\n",
		},
		{
			testName:   "Should return not found when order isn't paid",
			methodName: "POST",
			targetURL:  "/api/admin/orders/4/complete",
			headers:    bearer,
			test: func(t *testing.T) {
				jwtServiceMock.EXPECT().ValidateToken("token").Return(adminToken, nil)
				settlementServiceMock.EXPECT().Complete(gomock.Any(), int64(4)).
					Return(&models.NotFoundError{Entity: "оплаченный заказ", ID: "4"})
			},
			expectedCode:    http.StatusNotFound,
			expectedMessage: "оплаченный заказ 4 не найден\n",
		},
		{
			testName:   "Should complete order",
			methodName: "POST",
			targetURL:  "/api/admin/orders/4/complete",
			headers:    bearer,
			test: func(t *testing.T) {
				jwtServiceMock.EXPECT().ValidateToken("token").Return(adminToken, nil)
				settlementServiceMock.EXPECT().Complete(gomock.Any(), int64(4)).Return(nil)
			},
			expectedCode:    http.StatusNoContent,
			expectedMessage: "",
		},
	})
}

func TestCompleteOrderRouteWithIssuedToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	jwtService := services.NewJWTService("secret")
	settlementServiceMock := mock_models.NewMockSettlementService(ctrl)

	testServer := httptest.NewServer(
		New(Config{}, jwtService, nil, settlementServiceMock, nil, nil).get(),
	)
	defer testServer.Close()

	token, err := jwtService.GenerateJWT("operator")
	assert.NoError(t, err)

	foreign, err := services.NewJWTService("other-secret").GenerateJWT("operator")
	assert.NoError(t, err)

	runRouteTests(t, testServer, []routeTestCase{
		{
			testName:        "Should reject token signed with another key",
			methodName:      "POST",
			targetURL:       "/api/admin/orders/8/complete",
			headers:         map[string]string{"Authorization": "Bearer " + foreign},
			expectedCode:    http.StatusUnauthorized,
			expectedMessage: "Неверный токен\n",
		},
		{
			testName:   "Should complete order with issued token",
			methodName: "POST",
			targetURL:  "/api/admin/orders/8/complete",
			headers:    map[string]string{"Authorization": "Bearer " + token},
			test: func(t *testing.T) {
				settlementServiceMock.EXPECT().Complete(gomock.Any(), int64(8)).Return(nil)
			},
			expectedCode:    http.StatusNoContent,
			expectedMessage: "",
		},
	})
}

func TestMetricsRoute(t *testing.T) {
	testServer := httptest.NewServer(New(Config{}, nil, nil, nil, nil, nil).get())
	defer testServer.Close()

	res, _ := utils.TestRequest(t, testServer, "GET", "/api/orders/abc", nil, nil)
	res.Body.Close()

	res, body := utils.TestRequest(t, testServer, "GET", "/metrics", nil, nil)
	res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "storefront_http_requests_total")
	assert.Contains(t, body, `handler="/api/orders/{id}"`)
}
