/*
Package market 封装科伦坡证券交易所（CSE）的行情数据源与股票代码规范化。

  - CSEClient：调用 cse.lk 的公开接口获取报价、历史收盘价与市场概览，
    内置浏览器请求头、令牌桶限流、指数退避重试与可选的 Redis 报价缓存。
  - AliasResolver：把自由文本（"John Keells"、"jkh.n0000"、"DIAL"）规范化为
    交易代码；无法确定时返回 AMBIGUOUS_SYMBOL 错误。
  - RSI：Wilder 平滑的相对强弱指数。

上游失败不会回退到伪造数据，调用方会得到 TOOL_UPSTREAM_FAILURE。
*/
package market
