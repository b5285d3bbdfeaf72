package market

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/csescout/types"
	"go.uber.org/zap"
)

// SymbolResolver normalises a free-form ticker or company reference.
type SymbolResolver interface {
	// Resolve returns the canonical ticker, or a *types.Error with
	// AMBIGUOUS_SYMBOL when the reference cannot be pinned to one security.
	Resolve(ctx context.Context, ref string) (string, error)
}

// defaultAliases maps lower-case company names to CSE tickers.
var defaultAliases = map[string]string{
	"john keells holdings":         "JKH",
	"john keells":                  "JKH",
	"keells hotels":                "KHL",
	"john keells hotels":           "KHL",
	"dialog axiata":                "DIAL",
	"dialog":                       "DIAL",
	"commercial bank of ceylon":    "COMB",
	"commercial bank":              "COMB",
	"hatton national bank":         "HNB",
	"sampath bank":                 "SAMP",
	"lolc holdings":                "LOLC",
	"lolc":                         "LOLC",
	"ceylon tobacco company":       "CTC",
	"ceylon tobacco":               "CTC",
	"cargills ceylon":              "CARG",
	"cargills":                     "CARG",
	"hayleys":                      "HAYL",
	"expolanka holdings":           "EXPO",
	"expolanka":                    "EXPO",
	"lanka ioc":                    "LIOC",
	"aitken spence":                "SPEN",
	"national development bank":    "NDB",
	"sri lanka telecom":            "SLTL",
	"distilleries":                 "DIST",
	"ceylinco insurance":           "CINS",
	"melstacorp":                   "MELS",
	"richard pieris":               "RICH",
	"tokyo cement":                 "TKYO",
	"access engineering":           "AEL",
	"vallibel one":                 "VONE",
	"hemas holdings":               "HHL",
	"hemas":                        "HHL",
	"browns investments":           "BIL",
	"chevron lubricants lanka":     "LLUB",
	"seylan bank":                  "SEYB",
	"nations trust bank":           "NTB",
	"pan asia banking corporation": "PABC",
	"ceylon cold stores":           "CCS",
}

var (
	tickerShape = regexp.MustCompile(`^[A-Z]{2,6}$`)
	securityID  = regexp.MustCompile(`^([A-Z]{2,6})\.[NXRPWZ]\d{4}$`)
	nameNoise   = strings.NewReplacer(".", " ", ",", " ", "(", " ", ")", " ", "&", " ", "-", " ")
)

// ResolverConfig configures AliasResolver.
type ResolverConfig struct {
	// Aliases extends the built-in name table. Keys are matched case-insensitively.
	Aliases map[string]string `yaml:"aliases" json:"aliases"`

	// AllowUnlisted accepts an upper-case ticker-shaped reference that is
	// missing from the table, e.g. "ABAN" or "ABAN.N0000".
	AllowUnlisted bool `yaml:"allow_unlisted" json:"allow_unlisted"`

	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// DefaultResolverConfig returns the default resolver settings.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{AllowUnlisted: true, CacheTTL: 24 * time.Hour}
}

// AliasResolver resolves references against a static alias table, with an
// optional shared cache of positive results.
type AliasResolver struct {
	aliases map[string]string
	tickers map[string]struct{}
	cfg     ResolverConfig
	cache   Cache
	logger  *zap.Logger
}

// NewAliasResolver builds a resolver. cache may be nil.
func NewAliasResolver(cfg ResolverConfig, cache Cache, logger *zap.Logger) *AliasResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AliasResolver{
		aliases: make(map[string]string, len(defaultAliases)+len(cfg.Aliases)),
		tickers: make(map[string]struct{}),
		cfg:     cfg,
		cache:   cache,
		logger:  logger.With(zap.String("component", "symbol_resolver")),
	}
	for name, ticker := range defaultAliases {
		r.add(name, ticker)
	}
	for name, ticker := range cfg.Aliases {
		r.add(name, ticker)
	}
	return r
}

func (r *AliasResolver) add(name, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	r.aliases[normalizeName(name)] = ticker
	r.tickers[ticker] = struct{}{}
}

func (r *AliasResolver) Resolve(ctx context.Context, ref string) (string, error) {
	raw := strings.Trim(strings.TrimSpace(ref), `"'`)
	if raw == "" {
		return "", ambiguous(ref, "empty reference", nil)
	}

	cacheKey := "symbol:" + strings.ToLower(raw)
	if r.cache != nil {
		var cached string
		if err := r.cache.GetJSON(ctx, cacheKey, &cached); err == nil && cached != "" {
			return cached, nil
		}
	}

	ticker, err := r.resolve(raw)
	if err != nil {
		r.logger.Debug("symbol unresolved", zap.String("ref", raw), zap.Error(err))
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, cacheKey, ticker, r.cfg.CacheTTL); err != nil {
			r.logger.Debug("symbol cache write skipped", zap.Error(err))
		}
	}
	return ticker, nil
}

func (r *AliasResolver) resolve(raw string) (string, error) {
	upper := strings.ToUpper(raw)
	if m := securityID.FindStringSubmatch(upper); m != nil {
		upper = m[1]
		if r.known(upper) || r.cfg.AllowUnlisted {
			return upper, nil
		}
	}
	if r.known(upper) {
		return upper, nil
	}

	name := normalizeName(raw)
	if ticker, ok := r.aliases[name]; ok {
		return ticker, nil
	}

	candidates := r.candidates(name)
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		if r.cfg.AllowUnlisted && raw == upper && tickerShape.MatchString(raw) {
			return raw, nil
		}
		return "", ambiguous(raw, "no listed company matches", nil)
	default:
		return "", ambiguous(raw, "matches several listed companies", candidates)
	}
}

func (r *AliasResolver) known(ticker string) bool {
	_, ok := r.tickers[ticker]
	return ok
}

// candidates returns the distinct tickers whose alias contains name on word
// boundaries, or is contained in it.
func (r *AliasResolver) candidates(name string) []string {
	if len(name) < 3 {
		return nil
	}
	padded := " " + name + " "
	seen := make(map[string]struct{})
	for alias, ticker := range r.aliases {
		pa := " " + alias + " "
		if strings.Contains(pa, padded) || strings.Contains(padded, pa) {
			seen[ticker] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func normalizeName(s string) string {
	fields := strings.Fields(strings.ToLower(nameNoise.Replace(s)))
	out := fields[:0]
	for _, f := range fields {
		switch f {
		case "plc", "ltd", "limited", "company", "co":
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func ambiguous(ref, reason string, candidates []string) *types.Error {
	msg := fmt.Sprintf("cannot resolve %q: %s", ref, reason)
	if len(candidates) > 0 {
		msg += " (" + strings.Join(candidates, ", ") + ")"
	}
	return types.NewError(types.ErrAmbiguousSymbol, msg)
}
