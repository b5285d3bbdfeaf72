package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/csescout/types"
)

// InjectionPattern 注入模式
type InjectionPattern struct {
	Pattern     *regexp.Regexp
	Description string
}

// defaultInjectionPatterns 常见的指令覆盖与角色注入模式
var defaultInjectionPatterns = []*InjectionPattern{
	{
		Pattern:     regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`),
		Description: "attempt to ignore previous instructions",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|earlier|the\s+above)\s*(instructions?|prompts?|rules?)?`),
		Description: "attempt to disregard instructions",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(^|\n)\s*(system|assistant)\s*:`),
		Description: "role marker injection",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)<\s*/?\s*system\s*>|\[\s*/?INST\s*\]`),
		Description: "instruction tag injection",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)\bjailbreak\b|\bdo\s+anything\s+now\b`),
		Description: "jailbreak attempt",
	},
	// 中文指令覆盖
	{
		Pattern:     regexp.MustCompile(`忽略(之前|以上|上面|前面)(的)?(所有)?(指令|指示|规则)`),
		Description: "attempt to ignore previous instructions (zh)",
	},
}

// QueryValidatorConfig 输入校验配置
type QueryValidatorConfig struct {
	MaxLength       int  `yaml:"max_query_length" json:"max_query_length"`
	DetectInjection bool `yaml:"detect_injection" json:"detect_injection"`
}

// DefaultQueryValidatorConfig 返回默认配置
func DefaultQueryValidatorConfig() QueryValidatorConfig {
	return QueryValidatorConfig{MaxLength: 2000, DetectInjection: true}
}

// QueryValidator rejects user queries before a run starts.
type QueryValidator struct {
	maxLength int
	patterns  []*InjectionPattern
}

// NewQueryValidator 创建输入校验器
func NewQueryValidator(cfg QueryValidatorConfig) *QueryValidator {
	v := &QueryValidator{maxLength: cfg.MaxLength}
	if cfg.DetectInjection {
		v.patterns = defaultInjectionPatterns
	}
	return v
}

// Validate returns an INVALID_REQUEST error for an empty, oversized or
// injected query.
func (v *QueryValidator) Validate(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return invalidQuery("query is empty")
	}
	if v.maxLength > 0 {
		if n := utf8.RuneCountInString(q); n > v.maxLength {
			return invalidQuery(fmt.Sprintf("query is %d characters, the limit is %d", n, v.maxLength))
		}
	}
	for _, p := range v.patterns {
		if p.Pattern.MatchString(q) {
			return invalidQuery("query rejected: " + p.Description)
		}
	}
	return nil
}

func invalidQuery(msg string) *types.Error {
	e := types.NewError(types.ErrInvalidRequest, msg)
	e.HTTPStatus = 400
	return e
}
