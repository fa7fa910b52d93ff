package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	llmMu          sync.Mutex
	llmLog         *log.Logger
	llmDumpPayload bool
)

func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

// OpenLLMFile 打开模型交互日志文件；path 为空时关闭该输出。
func OpenLLMFile(path string) (io.Closer, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		SetLLMWriter(nil)
		return nil, nil
	}
	SetLLMWriter(f)
	return f, nil
}

func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmDumpPayload = enabled
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

func logLLM(tags []string, sections []llmSection) {
	llmMu.Lock()
	out := llmLog
	llmMu.Unlock()
	if out == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			b.WriteString("[" + tag + "]")
		}
	}
	b.WriteString("\n")
	for _, sec := range sections {
		title := strings.TrimSpace(sec.Title)
		if title == "" {
			title = "CONTENT"
		}
		b.WriteString("--- " + title + " ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	out.Print(b.String())
}

// LogLLMRequest 记录一次模型请求；agent 为调用方的 agent 类型（如 researcher）。
func LogLLMRequest(agent, provider, systemPrompt, userPrompt, payload string) {
	sections := []llmSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	llmMu.Lock()
	dump := llmDumpPayload
	llmMu.Unlock()
	if dump && strings.TrimSpace(payload) != "" {
		sections = append(sections, llmSection{Title: "PAYLOAD", Body: payload})
	}
	logLLM([]string{agent + "-request", provider}, sections)
}

func LogLLMResponse(agent, provider, raw string) {
	logLLM([]string{agent + "-response", provider}, []llmSection{{Title: "RAW", Body: raw}})
}
