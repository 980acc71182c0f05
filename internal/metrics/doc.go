// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的编排核心指标采集能力，覆盖
HTTP、Agent、熔断器、后端服务、任务队列、工作流与数据库七大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制；NewCollectorWithRegistry 允许注册到独立 Registry，
便于测试或多实例隔离。所有 Record 方法对 nil 接收者安全，
组件在未启用指标时直接持有 nil Collector 即可。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - Agent 指标：调用总数与耗时（按 agent_type/status）、重试次数、
    健康状态与当前负载 Gauge。
  - 熔断器指标：状态转换计数，按 target/from_state/to_state 分组。
  - 服务指标：健康状态 Gauge 与健康检查耗时。
  - 任务指标：处理总数、处理耗时、队列长度。
  - 工作流指标：运行总数与耗时（按 complexity/status）、步骤终态计数。
*/
package metrics
