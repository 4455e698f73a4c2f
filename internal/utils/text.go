package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeText 去掉首尾空白和控制字符，并检查长度（按字符计）
func NormalizeText(s string, maxLen int) (string, bool) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	n := utf8.RuneCountInString(s)
	if n == 0 || n > maxLen {
		return s, false
	}
	return s, true
}
