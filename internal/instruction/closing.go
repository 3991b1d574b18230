package instruction

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// RemoveClosingTag strips a dangling, partially streamed delimiter of param
// from the end of text while in is partial.
//
// A trailing "<" or "</" followed by any prefix of the parameter name is
// removed together with at most one whitespace rune before it. A complete
// opening tag "<param>" at the start is dropped as well. Final instructions
// return text unchanged.
func RemoveClosingTag(in Instruction, param ParamName, text string) string {
	if !in.Partial || text == "" {
		return text
	}
	text = strings.TrimPrefix(text, "<"+string(param)+">")
	cut := trailingTagStart(text, string(param))
	if cut < 0 {
		return text
	}
	head := text[:cut]
	if r, size := utf8.DecodeLastRuneInString(head); size > 0 && unicode.IsSpace(r) {
		head = head[:len(head)-size]
	}
	return head
}

// trailingTagStart returns the byte offset where the delimiter fragment
// begins, or -1 when text does not end with one.
func trailingTagStart(text, tag string) int {
	for n := len(tag); n >= 0; n-- {
		prefix := tag[:n]
		if strings.HasSuffix(text, "</"+prefix) {
			return len(text) - len(prefix) - 2
		}
		if strings.HasSuffix(text, "<"+prefix) {
			return len(text) - len(prefix) - 1
		}
	}
	return -1
}
