package guardrails

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Disclaimer is appended verbatim to any flagged answer.
const Disclaimer = "\n\n---\n*Disclaimer: This content is for informational purposes only and is not financial advice. " +
	"Share prices on the Colombo Stock Exchange can fall as well as rise. " +
	"Consult a licensed investment adviser before making any investment decision.*"

// DefaultRiskTerms are directive or promissory phrases that trigger the disclaimer.
// Each entry is a regular expression matched case-insensitively on word boundaries.
var DefaultRiskTerms = []string{
	`guarant\w*`,
	`risk[- ]free`,
	`sure thing`,
	`can[’']?t lose`,
	`cannot lose`,
	`buy now`,
	`sell now`,
	`must buy`,
	`must sell`,
	`double your money`,
}

// Verdict 审查结果
type Verdict struct {
	Text    string   `json:"text"`
	Flagged bool     `json:"flagged"`
	Matches []string `json:"matches,omitempty"`
}

// GuardConfig 输出护栏配置
type GuardConfig struct {
	// RiskTerms 为空时使用 DefaultRiskTerms
	RiskTerms  []string `yaml:"risk_terms" json:"risk_terms"`
	Disclaimer string   `yaml:"disclaimer" json:"disclaimer"`
}

// DefaultGuardConfig 返回默认配置
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RiskTerms:  append([]string(nil), DefaultRiskTerms...),
		Disclaimer: Disclaimer,
	}
}

// Guard scans final answers for risk terms. It is stateless and safe for
// concurrent use.
type Guard struct {
	pattern    *regexp.Regexp
	disclaimer string
	logger     *zap.Logger
}

// NewGuard compiles the configured risk terms into one word-bounded pattern.
func NewGuard(cfg GuardConfig, logger *zap.Logger) (*Guard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	terms := cfg.RiskTerms
	if len(terms) == 0 {
		terms = DefaultRiskTerms
	}
	if cfg.Disclaimer == "" {
		cfg.Disclaimer = Disclaimer
	}

	alts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, err := regexp.Compile(t); err != nil {
			return nil, fmt.Errorf("invalid risk term %q: %w", t, err)
		}
		// 短语内空白允许任意长度
		alts = append(alts, "(?:"+strings.ReplaceAll(t, " ", `\s+`)+")")
	}
	if len(alts) == 0 {
		return nil, fmt.Errorf("guardrail needs at least one risk term")
	}
	re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	if err != nil {
		return nil, fmt.Errorf("compile risk terms: %w", err)
	}

	return &Guard{
		pattern:    re,
		disclaimer: cfg.Disclaimer,
		logger:     logger.With(zap.String("component", "guardrail")),
	}, nil
}

// MustNewGuard is NewGuard with the default configuration.
func MustNewGuard() *Guard {
	g, err := NewGuard(DefaultGuardConfig(), nil)
	if err != nil {
		panic(err)
	}
	return g
}

// Disclaimer returns the suffix appended to flagged answers.
func (g *Guard) Disclaimer() string { return g.disclaimer }

// Review returns text unchanged when it is clean, and text plus the
// disclaimer when it is flagged. Text that already ends with the disclaimer
// is returned as is.
func (g *Guard) Review(text string) Verdict {
	body, already := strings.CutSuffix(text, g.disclaimer)
	matches := g.Detect(body)
	if len(matches) == 0 {
		return Verdict{Text: text}
	}

	g.logger.Info("risk terms detected", zap.Strings("matches", matches), zap.Bool("already_disclaimed", already))
	if already {
		return Verdict{Text: text, Flagged: true, Matches: matches}
	}
	return Verdict{Text: text + g.disclaimer, Flagged: true, Matches: matches}
}

// Detect returns the distinct risk terms in content, lower-cased, in order of
// first appearance.
func (g *Guard) Detect(content string) []string {
	found := g.pattern.FindAllString(content, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, m := range found {
		key := strings.Join(strings.Fields(strings.ToLower(m)), " ")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
