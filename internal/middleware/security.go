package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"

	"tally-attio-relay/internal/apperr"
	"tally-attio-relay/internal/contextkeys"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw body.
const SignatureHeader = "Tally-Signature"

// VerifySignature is a Chi middleware to validate the Tally-Signature header.
// With an empty secret verification is off, but the body is still captured.
func VerifySignature(logger *slog.Logger, secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				apperr.HandleError(w, logger, apperr.Input("cannot read request body", err), false)
				return
			}
			r.Body.Close()

			// Restore the body so the next handler can read it.
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

			if secret != "" {
				received := r.Header.Get(SignatureHeader)
				if received == "" {
					apperr.HandleError(w, logger, &apperr.Error{Kind: apperr.KindSignature, Message: "missing " + SignatureHeader + " header"}, false)
					return
				}

				expected := Sign(secret, bodyBytes)
				// Compare the signatures in constant time.
				if !hmac.Equal([]byte(received), []byte(expected)) {
					logger.Warn("Invalid signature received", "received_signature", received)
					apperr.HandleError(w, logger, &apperr.Error{Kind: apperr.KindSignature, Message: "invalid signature"}, false)
					return
				}
			}

			ctx := contextkeys.WithRequestBody(r.Context(), bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Sign computes the signature Tally sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
