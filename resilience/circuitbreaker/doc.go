// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package circuitbreaker 提供按目标隔离的熔断器实现。

# 状态机

	Closed --(连续失败 >= Threshold)--> Open
	Open   --(now >= open_until)------> HalfOpen（放行 HalfOpenMaxCalls 个探测）
	HalfOpen --(探测成功)--> Closed
	HalfOpen --(探测失败)--> Open（open_until 重置为 now + Cooldown）

RecordSuccess 在任何状态下都会清零失败计数并关闭熔断器。

# 使用方式

Registry 以目标名（agent 类型或服务名）为键管理 Breaker，
agent 健康检查与后端服务健康检查共享同一套语义。
*/
package circuitbreaker
