// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 CSE Scout 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertRoles / AssertEventuallyTrue
  - 数据工具: MustJSON

# 子包

  - testutil/mocks: MockProvider（可脚本化的 LLM Provider，记录每次请求）、
    MockResolver（代码解析器）、MockDataSource（内存行情数据源）
  - testutil/fixtures: CSE / Tavily / Chat Completions 响应体样例与典型查询

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithScript(
		mocks.ToolCallResponse(mocks.ToolCall("c1", "get_cse_stock_price", `{"ticker":"JKH"}`)),
		mocks.TextResponse("JKH last traded at LKR 198.50"),
	)
*/
package testutil
