// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求/响应模型、
重试包装与工具调用约定。

# Provider 抽象

核心接口是 [Provider]，包含补全、健康检查与能力声明。Supervisor 与
Worker 只依赖该接口，可以在测试中替换为脚本化的 mock。

# 工具调用

工具通过 [ChatRequest].Tools 声明，模型在响应中返回 ToolCalls；
ToolChoice 支持 "auto"、"none"、"required" 或具体的工具名称，
用于 Supervisor 的强制结构化路由输出。ParallelToolCalls 控制模型
是否允许在单次响应中返回多个工具调用。

# 子包

  - providers：OpenAI 兼容协议的通用类型与错误映射
  - providers/openaicompat：OpenAI 兼容 Provider 基础实现
  - providers/groq：Groq（llama-3.3-70b-versatile）Provider
  - retry：指数退避重试
  - tools：工具注册表与并行执行器
  - tokenizer：Token 计数（tiktoken 与估算器）
*/
package llm
