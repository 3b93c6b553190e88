package wecom

import (
	"strings"
	"unicode/utf8"
)

// MaxTextBytes 单条文本消息内容的最大字节数
const MaxTextBytes = 2048

// SplitContent 把内容切分为不超过 maxBytes 字节的块。
// 优先按行切分，单行超长时才在行内切分，且不会切断多字节字符。
func SplitContent(content string, maxBytes int) []string {
	if maxBytes < utf8.UTFMax {
		maxBytes = utf8.UTFMax
	}

	var chunks []string
	var current []byte

	flush := func() {
		if text := strings.TrimSpace(string(current)); text != "" {
			chunks = append(chunks, text)
		}
		current = current[:0]
	}

	for _, line := range splitLines(content) {
		encoded := []byte(line + "\n")

		if len(encoded) > maxBytes {
			if len(current) > 0 {
				flush()
			}
			for start := 0; start < len(encoded); {
				end := min(start+maxBytes, len(encoded))
				for end > start && end < len(encoded) && !utf8.RuneStart(encoded[end]) {
					end--
				}
				if text := strings.TrimSpace(string(encoded[start:end])); text != "" {
					chunks = append(chunks, text)
				}
				start = end
			}
			continue
		}

		if len(current)+len(encoded) > maxBytes {
			flush()
		}
		current = append(current, encoded...)
	}

	if len(current) > 0 {
		flush()
	}
	return chunks
}

func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
