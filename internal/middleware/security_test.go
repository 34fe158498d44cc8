package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"tally-attio-relay/internal/contextkeys"
)

// TestVerifySignature uses a table-driven approach to test the middleware.
func TestVerifySignature(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil)) // Suppress logs during tests.
	const testPayload = `{"eventType":"FORM_RESPONSE"}`

	testCases := []struct {
		name               string
		secret             string // The secret to initialize the middleware with.
		signatureHeader    string // The signature to send in the request header.
		expectedStatusCode int
		expectBodyInCtx    bool
	}{
		{
			name:               "Success - Valid Signature",
			secret:             "test-secret",
			signatureHeader:    Sign("test-secret", []byte(testPayload)),
			expectedStatusCode: http.StatusOK,
			expectBodyInCtx:    true,
		},
		{
			name:               "Failure - Invalid Signature",
			secret:             "test-secret",
			signatureHeader:    "invalid-signature",
			expectedStatusCode: http.StatusUnauthorized,
			expectBodyInCtx:    false,
		},
		{
			name:               "Failure - Signed With Another Secret",
			secret:             "test-secret",
			signatureHeader:    Sign("other-secret", []byte(testPayload)),
			expectedStatusCode: http.StatusUnauthorized,
			expectBodyInCtx:    false,
		},
		{
			name:               "Failure - Missing Signature Header",
			secret:             "test-secret",
			signatureHeader:    "",
			expectedStatusCode: http.StatusUnauthorized,
			expectBodyInCtx:    false,
		},
		{
			name:               "Success - Verification Off With Empty Secret",
			secret:             "",
			signatureHeader:    "any-value-is-ignored",
			expectedStatusCode: http.StatusOK,
			expectBodyInCtx:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// The next handler checks that the request body was passed in the context.
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.expectBodyInCtx {
					bodyFromCtx, ok := contextkeys.RequestBody(r.Context())
					if !ok || string(bodyFromCtx) != testPayload {
						t.Errorf("request body not found or incorrect in context")
						w.WriteHeader(http.StatusInternalServerError)
						return
					}
					restored, _ := io.ReadAll(r.Body)
					if string(restored) != testPayload {
						t.Errorf("request body was not restored for the next handler")
					}
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/webhooks/tally", bytes.NewBufferString(testPayload))
			if tc.signatureHeader != "" {
				req.Header.Set(SignatureHeader, tc.signatureHeader)
			}
			rr := httptest.NewRecorder()

			handlerToTest := VerifySignature(logger, tc.secret)(nextHandler)
			handlerToTest.ServeHTTP(rr, req)

			if status := rr.Code; status != tc.expectedStatusCode {
				t.Errorf("handler returned wrong status code: got %v want %v", status, tc.expectedStatusCode)
			}
		})
	}
}
