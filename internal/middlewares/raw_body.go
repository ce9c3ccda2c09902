package middlewares

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

type rawBodyFieldType string

const rawBodyField rawBodyFieldType = "rawBodyField"

const maxRawBodySize = 1 << 20

// RawBodyMiddleware читает тело запроса целиком без разбора.
// Нужен там, где подпись считается по исходным байтам.
func RawBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer

		if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxRawBodySize)); err != nil {
			http.Error(w, fmt.Sprintf("Ошибка чтения из тела запроса: %s", err.Error()), http.StatusBadRequest)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), rawBodyField, buf.Bytes())))
	})
}

func GetRawBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, ok := r.Context().Value(rawBodyField).([]byte)

	if !ok {
		http.Error(w, "Не удалось извлечь тело запроса из контекста", http.StatusInternalServerError)
		return nil, false
	}

	return data, true
}
