// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loomcart/internal/middleware"
	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/payment"
)

// handleServiceError はサービス層から返されたエラーをレスポンスに変換する。
//
//   - APIError: コードに対応するステータス
//   - GatewayError: ゲートウェイのステータスをそのまま転送し、詳細は含めない
//   - それ以外: 汎用の500（詳細はログのみ）
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	var gwErr *payment.GatewayError
	if errors.As(err, &gwErr) {
		status := gwErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		middleware.WriteErrorResponse(w, status, model.NewUpstreamFailureError("payment"))
		return
	}

	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// methodNotAllowed は405のJSONレスポンスを返す。
func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPIError(w, model.NewMethodNotAllowedError(r.Method))
}

// notFound は404のJSONレスポンスを返す。
func notFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
		Code:     "NOT_FOUND",
		Message:  "The requested resource was not found.",
		Category: "validation",
		Action:   "Check the request path.",
	})
}
