package provider

import "context"

type ChatPayload struct {
	System     string
	User       string
	ExpectJSON bool
	MaxTokens  int
	// Purpose 仅用于 LLM 日志标注（如 researcher、social）。
	Purpose string
}

// ModelProvider 是一个可调用的聊天模型。
type ModelProvider interface {
	ID() string
	Enabled() bool
	Call(ctx context.Context, payload ChatPayload) (string, error)
}
