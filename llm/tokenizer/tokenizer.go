package tokenizer

import (
	"strings"
)

// Tokenizer是统一的代号计数界面.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Truncate 将文本截断到最多 maxTokens 个 token.
	Truncate(text string, maxTokens int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// Ellipsis 追加到被截断文本的末尾.
const Ellipsis = " …"

// fallbackTokenizer 优先使用 primary，失败时回退到 secondary.
type fallbackTokenizer struct {
	primary   Tokenizer
	secondary Tokenizer
}

// WithFallback 组合两个分词器：primary 出错（例如 tiktoken 编码表无法加载）时使用 secondary.
func WithFallback(primary, secondary Tokenizer) Tokenizer {
	return &fallbackTokenizer{primary: primary, secondary: secondary}
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.secondary.CountTokens(text)
}

func (f *fallbackTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if out, err := f.primary.Truncate(text, maxTokens); err == nil {
		return out, nil
	}
	return f.secondary.Truncate(text, maxTokens)
}

func (f *fallbackTokenizer) Name() string {
	return f.primary.Name() + "|" + f.secondary.Name()
}

// ForModel 返回模型对应的分词器：tiktoken 优先，估算器兜底.
func ForModel(model string) Tokenizer {
	return WithFallback(NewTiktokenTokenizer(model), NewEstimatorTokenizer())
}

// Clamp 将文本限制在 maxTokens 以内；maxTokens <= 0 表示不限制.
// 截断失败时返回原文，摘要长度只是软约束.
func Clamp(t Tokenizer, text string, maxTokens int) string {
	if maxTokens <= 0 || t == nil {
		return text
	}
	out, err := t.Truncate(text, maxTokens)
	if err != nil {
		return text
	}
	return out
}

// trimToWordBoundary 回退到最后一个空白处，避免截断在单词中间.
func trimToWordBoundary(s string) string {
	if i := strings.LastIndexAny(s, " \n\t"); i > len(s)/2 {
		return s[:i]
	}
	return s
}
