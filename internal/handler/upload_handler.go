package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/loomcart/internal/middleware"
	"github.com/hitoshi/loomcart/internal/model"
	"github.com/hitoshi/loomcart/internal/upload"
)

// multipartOverhead はmultipartの境界やヘッダーのために許容する余白。
const multipartOverhead = 64 << 10

// UploadServiceInterface はアップロードハンドラーが必要とするサービスインターフェース。
type UploadServiceInterface interface {
	ScanAndStore(ctx context.Context, filename string, data []byte) (*upload.Response, error)
}

// UploadHandler はファイルアップロード検査のハンドラー。
type UploadHandler struct {
	service  UploadServiceInterface
	maxBytes int64
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service UploadServiceInterface, maxBytes int64) *UploadHandler {
	return &UploadHandler{service: service, maxBytes: maxBytes}
}

// Scan はmultipartのfile項目を検査し、安全であれば保存する。
// POST /api/uploads/scan
func (h *UploadHandler) Scan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	file, header, err := r.FormFile(upload.FieldName)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteAPIError(w, model.NewBadRequestError("file is too large"))
			return
		}
		middleware.WriteAPIError(w, model.NewBadRequestError("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		middleware.WriteAPIError(w, model.NewBadRequestError("file could not be read"))
		return
	}
	if int64(len(data)) > h.maxBytes {
		middleware.WriteAPIError(w, model.NewBadRequestError("file is too large"))
		return
	}

	resp, err := h.service.ScanAndStore(r.Context(), header.Filename, data)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !resp.Safe {
		middleware.WriteJSON(w, http.StatusBadRequest, resp)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}
