// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 Orchestra 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
// Agent 客户端与工作流执行器通过全局 otel.Tracer 打点，因此 Init 之后即可导出。
package telemetry
