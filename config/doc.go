// Package config 提供 csescout 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → CSESCOUT_ 环境变量 的顺序叠加，
// 最后经过 Validate 校验。Reloader 轮询配置文件，
// 在运行时应用少量可热更新的字段（日志级别、API 限流）。
package config
