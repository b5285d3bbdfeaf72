package agent

import (
	"strings"
	"time"

	"github.com/BaSui01/csescout/llm/tools"
)

// Default worker names.
const (
	AnalystName    = "analyst"
	ResearcherName = "researcher"
)

// MarketRules are the shared instructions every worker receives.
const MarketRules = `CORE RULES:
1. Context is King: only answer questions about Sri Lankan stocks listed on the Colombo Stock Exchange (CSE).
2. Anti-Hallucination: if a search returns news about cricket, Pakistan-listed companies or unrelated firms, IGNORE it.
3. Honesty: if the news is irrelevant, say exactly: "No relevant financial news found."
4. Formatting: always show prices clearly in LKR.
5. Never invent figures. If a tool fails, say which data is unavailable.`

const analystRole = `You are the Quant Analyst for the Colombo Stock Exchange.
You retrieve live prices, compute technical indicators such as RSI, and read the market overview.
Report numbers exactly as the tools return them.`

const researcherRole = `You are the News Researcher for the Colombo Stock Exchange.
You search recent financial news and summarise only what is relevant to the requested company or market.`

const summaryInstruction = `When you have enough information, reply WITHOUT calling tools: write a short, self-contained summary of your findings for the supervisor. Mention any data you could not obtain.`

// budgetExhaustedPrompt asks for a final answer once the step budget is used up.
const budgetExhaustedPrompt = `Your tool budget for this subtask is exhausted. Summarise what you have found so far, without calling tools, and state what is missing.`

// BuildSystemPrompt composes a worker's system message.
func BuildSystemPrompt(role string) string {
	return strings.Join([]string{role, MarketRules, summaryInstruction}, "\n\n")
}

// AnalystConfig returns the quantitative worker: prices, RSI and market overview.
func AnalystConfig() WorkerConfig {
	return WorkerConfig{
		Name:         AnalystName,
		Description:  "Quant work: live CSE prices in LKR, RSI and other indicators, market overview (ASPI, turnover).",
		Tools:        []string{tools.PriceToolName, tools.RSIToolName, tools.OverviewToolName},
		SystemPrompt: BuildSystemPrompt(analystRole),
		MaxSteps:     4,
		StepTimeout:  60 * time.Second,
	}
}

// ResearcherConfig returns the qualitative worker: news search.
func ResearcherConfig() WorkerConfig {
	return WorkerConfig{
		Name:         ResearcherName,
		Description:  "Qualitative work: recent Sri Lankan financial news about a company or the market.",
		Tools:        []string{tools.NewsToolName},
		SystemPrompt: BuildSystemPrompt(researcherRole),
		MaxSteps:     4,
		StepTimeout:  60 * time.Second,
	}
}
