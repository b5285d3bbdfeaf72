package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 基于 tiktoken 的精确分词器.
// Llama 系列没有公开的 tiktoken 编码表，使用 cl100k_base 作为近似预算.
type TiktokenTokenizer struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// modelEncodings 将模型前缀映射到 tiktoken 编码，按前缀长度从长到短匹配.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"llama-3", "cl100k_base"},
	{"gpt-4", "cl100k_base"},
}

// NewTiktokenTokenizer 为给定模型创建 tiktoken 分词器；编码表在首次使用时加载.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	encoding := "cl100k_base"
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			encoding = m.encoding
			break
		}
	}
	return &TiktokenTokenizer{model: model, encoding: encoding}
}

// init lazily 初始化 tiktoken 编码(可以在第一次使用时下载数据).
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return trimToWordBoundary(t.enc.Decode(tokens[:maxTokens])) + Ellipsis, nil
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
