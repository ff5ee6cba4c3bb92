// Package tokenizer 提供统一的词元模型：分块大小、上下文与历史预算都以它计数。
// 规则：空白分隔的连续字符为一个词元，CJK 区段的每个字符单独成为一个词元。
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token 表示源文本中的一个词元，记录其在原文中的字节区间，
// 以便分块后的每个片段都是原文的精确子串。
type Token struct {
	Start int // 起始字节偏移（含）
	End   int // 结束字节偏移（不含）
}

// wide 判断是否属于 CJK 区段（汉字、假名、谚文及 CJK 标点），
// 这些字符逐字计为一个词元。
func wide(r rune) bool {
	return r >= 0x2E80
}

// Tokenize 将文本切分为词元序列。
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/4)
	start := -1
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			if start >= 0 {
				tokens = append(tokens, Token{Start: start, End: i})
				start = -1
			}
		case wide(r):
			if start >= 0 {
				tokens = append(tokens, Token{Start: start, End: i})
				start = -1
			}
			tokens = append(tokens, Token{Start: i, End: i + utf8.RuneLen(r)})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Start: start, End: len(text)})
	}
	return tokens
}

// Count 返回文本的词元数量。
func Count(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case wide(r):
			inWord = false
			count++
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

// Truncate 返回覆盖前 n 个词元的文本前缀，按词元边界截断。
// n 不小于词元总数时原样返回。
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := Tokenize(text)
	if n >= len(tokens) {
		return text
	}
	return strings.TrimRight(text[:tokens[n-1].End], " \t\n")
}

// Text 返回词元在原文中的内容。
func (t Token) Text(source string) string {
	return source[t.Start:t.End]
}
