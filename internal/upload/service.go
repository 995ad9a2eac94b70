package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// FieldName はmultipartのファイル項目名。
const FieldName = "file"

// Recorder は検査結果を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordUploadScan(result string)
}

// Response は検査の応答。安全でない場合はReasonのみを含む。
type Response struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
	Path   string `json:"path,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Service はファイルを検査し、安全なものだけを保存する。
type Service struct {
	scanner  *Scanner
	storage  Storage
	recorder Recorder
	newID    func() string
}

// NewService はServiceを生成する。
func NewService(scanner *Scanner, storage Storage, recorder Recorder) *Service {
	return &Service{
		scanner:  scanner,
		storage:  storage,
		recorder: recorder,
		newID:    uuid.NewString,
	}
}

// ScanAndStore はファイルを検査する。安全でなければ保存せずSafe=falseの応答を返す。
// 保存名はクライアントのファイル名を使わず、UUIDから生成する。
func (s *Service) ScanAndStore(ctx context.Context, filename string, data []byte) (*Response, error) {
	result := s.scanner.Scan(filename, data)
	if !result.Safe {
		s.record("rejected")
		slog.Warn("unsafe upload rejected",
			slog.String("filename", filename),
			slog.String("reason", result.Reason),
			slog.Int("size", len(data)),
		)
		return &Response{Safe: false, Reason: result.Reason}, nil
	}

	objectPath := fmt.Sprintf("uploads/%s.%s", s.newID(), result.Ext)
	publicURL, err := s.storage.Put(ctx, objectPath, result.ContentType, data)
	if err != nil {
		s.record("storage_error")
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	s.record("accepted")
	slog.Info("upload stored",
		slog.String("path", objectPath),
		slog.String("content_type", result.ContentType),
		slog.Int("size", len(data)),
	)
	return &Response{Safe: true, Path: objectPath, URL: publicURL}, nil
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordUploadScan(result)
	}
}
