// =============================================================================
// 📦 测试数据工厂 - 上游响应样例
// =============================================================================
// 提供 CSE / Tavily / OpenAI 兼容接口的响应体，用于 httptest 服务端
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// 🎯 典型查询
// =============================================================================

const (
	QueryCompare     = "Compare JKH and DIAL"
	QueryUnknown     = "What is the price of XYZCorp?"
	QueryRepeat      = "Check the JKH price again and again until it changes"
	QueryRiskyAdvice = "Is JKH a guaranteed winner?"
)

// =============================================================================
// 📈 CSE
// =============================================================================

// CSEQuoteJSON companyInfoSummery 响应体
func CSEQuoteJSON(name string, price, change, pct float64, volume int64) string {
	return fmt.Sprintf(`{"reqSymbolInfo":{"name":%q,"lastTradedPrice":%g,"change":%g,"changePercentage":%g,"tdyShareVolume":%d}}`,
		name, price, change, pct, volume)
}

// CSEEmptyQuoteJSON 无效代码时的响应体
const CSEEmptyQuoteJSON = `{"reqSymbolInfo":null}`

// CSEChartJSON chartData 响应体
func CSEChartJSON(closes ...float64) string {
	type point struct {
		P float64 `json:"p"`
		T int64   `json:"t"`
	}
	pts := make([]point, len(closes))
	for i, c := range closes {
		pts[i] = point{P: c, T: int64(i)}
	}
	b, _ := json.Marshal(map[string]any{"chartData": pts})
	return string(b)
}

// =============================================================================
// 📰 Tavily
// =============================================================================

// TavilyJSON search 响应体，参数为 title/content 交替
func TavilyJSON(titleContent ...string) string {
	type result struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	}
	results := make([]result, 0, len(titleContent)/2)
	for i := 0; i+1 < len(titleContent); i += 2 {
		results = append(results, result{
			Title:   titleContent[i],
			URL:     fmt.Sprintf("https://news.example.lk/%d", i/2),
			Content: titleContent[i+1],
			Score:   0.9,
		})
	}
	b, _ := json.Marshal(map[string]any{"results": results})
	return string(b)
}

// =============================================================================
// 🤖 OpenAI 兼容 Chat Completions
// =============================================================================

// ChatTextJSON 文本回复
func ChatTextJSON(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"model":   "llama-3.3-70b-versatile",
		"choices": []any{map[string]any{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(b)
}

// ChatToolCallJSON 单个工具调用回复，args 为 JSON 字符串
func ChatToolCallJSON(id, name, args string) string {
	b, _ := json.Marshal(map[string]any{
		"id":    "chatcmpl-test",
		"model": "llama-3.3-70b-versatile",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []any{map[string]any{
					"id":       id,
					"type":     "function",
					"function": map[string]any{"name": name, "arguments": args},
				}},
			},
		}},
	})
	return string(b)
}
