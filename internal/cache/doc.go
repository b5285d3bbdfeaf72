/*
包 cache 提供基于 Redis 的缓存管理能力。

Manager 封装 go-redis 客户端，为符号解析结果与行情快照提供
统一的字符串/JSON 读写接口；所有键自动加上配置的前缀。

  - Get/Set/GetJSON/SetJSON/Delete：基础读写，未命中返回 ErrCacheMiss。
  - 健康检查：后台定时 Ping，Close 时退出。
  - 缓存是可选的：Redis 不可用时上层按未命中处理，不影响查询结果。
*/
package cache
