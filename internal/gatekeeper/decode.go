package gatekeeper

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes は管理APIのリクエストボディ上限。
const maxBodyBytes = 1 << 20

// validate は構造体タグによる入力検証器。スレッドセーフで、キャッシュを持つため共有する。
var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON はリクエストボディをvにデコードし、validateタグで検証する。
// 失敗時は呼び出し元へ返せる短い理由付きのエラーを返す。
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("request body is not valid JSON")
	}
	return ValidateStruct(v)
}

// ValidateStruct はvalidateタグで構造体を検証する。
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fieldErrors(verrs)
		}
		return err
	}
	return nil
}

// fieldErrors は検証エラーを「field: tag」の一覧にまとめる。
func fieldErrors(verrs validator.ValidationErrors) error {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid fields: %s", strings.Join(parts, ", "))
}
