package jsonutil

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

const codeFence = "```"

// ExtractJSON 从模型回复中取出第一个完整的 JSON 值（对象或数组）。
// 优先 ``` 代码块，其次是正文中最先出现的 { 或 [。
func ExtractJSON(raw string) (string, bool) {
	out, _, ok := extract(raw)
	return out, ok
}

func ExtractJSONWithOffset(raw string) (string, int, bool) {
	return extract(raw)
}

// ExtractObject 只接受 JSON 对象。
func ExtractObject(raw string) (gjson.Result, bool) {
	block, ok := ExtractJSON(raw)
	if !ok {
		return gjson.Result{}, false
	}
	res := gjson.Parse(block)
	if !res.IsObject() {
		return gjson.Result{}, false
	}
	return res, true
}

// Pretty 缩进模型回复中的 JSON 用于日志，保留模型给出的键顺序；
// 回复里没有 JSON 时原样返回。
func Pretty(raw string) string {
	block, ok := ExtractJSON(raw)
	if !ok {
		return strings.TrimSpace(raw)
	}
	return strings.TrimRight(string(pretty.Pretty([]byte(block))), "\n")
}

func extract(raw string) (string, int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", -1, false
	}
	if block, offset, ok := extractFromFence(raw); ok {
		return block, offset, true
	}
	return extractBalanced(raw)
}

func extractFromFence(raw string) (string, int, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", -1, false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", -1, false
	}
	block := rest[:end]
	offset := start + len(codeFence)
	// 跳过语言标记行，如 ```json
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
			offset += idx + 1
		}
	}
	out, rel, ok := extractBalanced(block)
	if !ok {
		return "", -1, false
	}
	return out, offset + rel, true
}

func extractBalanced(raw string) (string, int, bool) {
	for from := 0; from < len(raw); {
		idx := strings.IndexAny(raw[from:], "{[")
		if idx == -1 {
			return "", -1, false
		}
		start := from + idx
		if end, ok := matchClose(raw, start); ok {
			candidate := raw[start : end+1]
			if gjson.Valid(candidate) {
				return candidate, start, true
			}
		}
		from = start + 1
	}
	return "", -1, false
}

func matchClose(raw string, start int) (int, bool) {
	open := raw[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}
