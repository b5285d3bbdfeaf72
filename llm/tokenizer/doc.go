// Package tokenizer 提供统一的 Token 计数与截断接口，
// 支持 tiktoken 精确计数与字符估算器，用于约束 Worker 摘要长度，
// 保证 Supervisor 在有界、可比较的文本上做路由决策。
package tokenizer
