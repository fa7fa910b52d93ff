// Package payload 统一 CLI 与 HTTP 的请求解码错误和错误响应体。
package payload

import (
	"encoding/json"
	"errors"
	"io"

	"kabupilot/internal/agent"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/pipeline"
)

// FieldError 表示请求中某个字段无法解析或缺失。
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Reason }

func Field(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// Decode 解码 JSON 负载，错误统一转换为 FieldError。
func Decode(raw []byte, dst any) error {
	return FromDecodeError(json.Unmarshal(raw, dst))
}

// FromDecodeError 把 JSON 解码错误映射为带字段路径的 FieldError；io.EOF（空负载）视为成功。
func FromDecodeError(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "$"
		}
		return &FieldError{Field: field, Reason: "expected " + typeErr.Type.String()}
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return err
	}
	return &FieldError{Field: "$", Reason: err.Error()}
}

// ErrorBody 是失败时输出的 JSON 文档；Result 携带失败前的部分结果。
type ErrorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Result any    `json:"result,omitempty"`
}

func NewErrorBody(err error, result any) ErrorBody {
	body := ErrorBody{Error: err.Error(), Result: result}
	body.Field, _ = FieldOf(err)
	return body
}

// FieldOf 返回结构性错误对应的字段；ok 为 false 表示不是结构性错误。
func FieldOf(err error) (string, bool) {
	var (
		invalid *agent.InvalidPayloadError
		fe      *FieldError
	)
	switch {
	case errors.As(err, &invalid):
		return invalid.Field, true
	case errors.As(err, &fe):
		return fe.Field, true
	case errors.Is(err, knowledge.ErrUnsupportedMarket):
		return "market", true
	}
	return "", false
}

func IsStructural(err error) bool {
	_, ok := FieldOf(err)
	return ok
}

func IsBusy(err error) bool {
	return errors.Is(err, pipeline.ErrBusy)
}
