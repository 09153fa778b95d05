package scoring

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

// maxExtractDepth bounds recursion through nested raw bodies.
const maxExtractDepth = 3

// ExtractText pulls analyzable text out of a request or response body.
//
// Recognized shapes:
//   - plain text and JSON strings
//   - chat payloads with a messages array, where content is a string or a
//     list of {type, text} parts
//   - Gemini payloads with contents[].parts[].text
//   - flat prompt, input and text fields (string or list of strings)
//   - Chrome webRequest bodies: {"raw":[{"bytes":...}]} and {"formData":{...}}
//
// Anything unrecognized or malformed yields "".
func ExtractText(body []byte) string {
	return extract(body, 0)
}

func extract(body []byte, depth int) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || depth > maxExtractDepth || !utf8.Valid(trimmed) {
		return ""
	}
	if trimmed[0] != '{' && trimmed[0] != '[' && trimmed[0] != '"' {
		return string(trimmed)
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return strings.Join(fromObject(t, depth), "\n")
	default:
		return ""
	}
}

func fromObject(obj map[string]any, depth int) []string {
	var parts []string

	if raw, ok := obj["raw"].([]any); ok {
		var buf []byte
		for _, r := range raw {
			chunk, _ := r.(map[string]any)
			s, _ := chunk["bytes"].(string)
			buf = append(buf, decodeRawChunk(s)...)
		}
		if text := extract(buf, depth+1); text != "" {
			parts = append(parts, text)
		}
	}

	if form, ok := obj["formData"].(map[string]any); ok {
		for _, key := range slices.Sorted(maps.Keys(form)) {
			parts = append(parts, stringsOf(form[key])...)
		}
	}

	if msgs, ok := obj["messages"].([]any); ok {
		for _, m := range msgs {
			msg, ok := m.(map[string]any)
			if !ok {
				continue
			}
			parts = append(parts, contentText(msg["content"])...)
		}
	}

	if contents, ok := obj["contents"].([]any); ok {
		for _, c := range contents {
			content, ok := c.(map[string]any)
			if !ok {
				continue
			}
			parts = append(parts, contentText(content["parts"])...)
		}
	}

	for _, key := range []string{"prompt", "input", "text"} {
		parts = append(parts, stringsOf(obj[key])...)
	}
	return parts
}

// contentText handles both string content and a list of typed parts.
func contentText(v any) []string {
	switch c := v.(type) {
	case string:
		if c = strings.TrimSpace(c); c != "" {
			return []string{c}
		}
	case []any:
		var out []string
		for _, p := range c {
			switch part := p.(type) {
			case string:
				if part != "" {
					out = append(out, part)
				}
			case map[string]any:
				if s, ok := part["text"].(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		if t = strings.TrimSpace(t); t != "" {
			return []string{t}
		}
	case []any:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

// decodeRawChunk accepts base64 (how bridges usually serialize ArrayBuffers)
// when it decodes to UTF-8 text, and falls back to the literal string.
func decodeRawChunk(s string) []byte {
	if s == "" {
		return nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && utf8.Valid(b) {
		return b
	}
	return []byte(s)
}
