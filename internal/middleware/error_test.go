package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

var apiErrorStatuses = []interface{}{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusServiceUnavailable,
}

func decodeErrorResponse(body []byte) (ErrorResponse, bool) {
	var response ErrorResponse
	return response, json.Unmarshal(body, &response) == nil
}

// Every error status shares one envelope: top-level message plus code,
// message and RFC3339 timestamp under "error"
func TestProperty_ErrorEnvelope(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("envelope is complete for every status", prop.ForAll(
		func(statusCode int, message string) bool {
			w := httptest.NewRecorder()
			RespondWithError(w, statusCode, message)

			if w.Code != statusCode || w.Header().Get("Content-Type") != "application/json" {
				return false
			}

			response, ok := decodeErrorResponse(w.Body.Bytes())
			if !ok {
				return false
			}
			if _, err := time.Parse(time.RFC3339, response.Error.Timestamp); err != nil {
				return false
			}
			return response.Message == message &&
				response.Error.Message == message &&
				response.Error.Code == http.StatusText(statusCode) &&
				response.Error.Details == nil
		},
		gen.OneConstOf(apiErrorStatuses...),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ErrorDetailsAreIncluded(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("details survive the round trip", prop.ForAll(
		func(productID int64) bool {
			w := httptest.NewRecorder()
			RespondWithErrorDetails(w, http.StatusBadRequest, fmt.Sprintf("product %d not found", productID),
				map[string]interface{}{"product_id": productID})

			response, ok := decodeErrorResponse(w.Body.Bytes())
			if !ok {
				return false
			}
			// JSON numbers decode as float64
			got, ok := response.Error.Details["product_id"].(float64)
			return ok && int64(got) == productID
		},
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// The first violation becomes the top-level message; all of them are listed
func TestProperty_ValidationErrorsPromoteFirstViolation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("message is the first violation", prop.ForAll(
		func(index int, message string) bool {
			violations := []ValidationError{
				{Field: fmt.Sprintf("items[%d].quantity", index), Message: message},
				{Field: "delivery_address", Message: "This field is required"},
			}

			w := httptest.NewRecorder()
			RespondWithValidationErrors(w, violations)

			if w.Code != http.StatusBadRequest {
				return false
			}
			response, ok := decodeErrorResponse(w.Body.Bytes())
			if !ok {
				return false
			}
			listed, ok := response.Error.Details["validation_errors"].([]interface{})
			return ok && len(listed) == 2 &&
				response.Message == fmt.Sprintf("items[%d].quantity: %s", index, message)
		},
		gen.IntRange(0, 50),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithJSON_EncodesPayload(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithJSON(w, http.StatusCreated, map[string]interface{}{"id": 7, "status": "pending"})

	if w.Code != http.StatusCreated || w.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload["status"] != "pending" || payload["id"] != float64(7) {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestRespondWithValidationErrors_EmptyList(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithValidationErrors(w, nil)

	response, ok := decodeErrorResponse(w.Body.Bytes())
	if !ok {
		t.Fatal("invalid JSON")
	}
	if w.Code != http.StatusBadRequest || response.Message != "validation failed" {
		t.Errorf("unexpected response %d %+v", w.Code, response)
	}
}

func TestErrorHandlingMiddleware_RecoversPanics(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("order repository exploded")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/orders", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	response, ok := decodeErrorResponse(w.Body.Bytes())
	if !ok {
		t.Fatal("invalid JSON")
	}
	if strings.Contains(response.Message, "exploded") {
		t.Error("panic value must not leak to the client")
	}
}

func TestErrorHandlingMiddleware_RepanicsAbort(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if recovered := recover(); recovered != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", recovered)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders", nil))
}
