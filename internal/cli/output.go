package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"kabupilot/internal/transport/payload"
)

// reportedError 表示结果（含错误信息）已经写到 stdout，只需设置退出码。
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// writeResult 输出结果；err 非空时把结果包进错误体一起输出。
func writeResult(w io.Writer, result any, err error) error {
	if err == nil {
		return writeJSON(w, result)
	}
	if werr := writeJSON(w, payload.NewErrorBody(err, result)); werr != nil {
		return werr
	}
	return &reportedError{err: err}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPayload 从文件读取 JSON 负载，"-" 表示 stdin，空路径表示无负载。
func readPayload(path string, stdin io.Reader, dst any) (bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return false, nil
	}
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return false, fmt.Errorf("read payload: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return false, nil
	}
	if err := payload.Decode(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}
