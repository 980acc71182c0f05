// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package main 提供 Orchestra 服务端程序入口。

# 概述

cmd/orchestra 是任务编排服务的可执行入口，提供 serve、services、
health、version 等子命令。程序加载 YAML 配置与环境变量覆盖，
使用 zap 结构化日志，在独立端口暴露 Prometheus 指标。

# 核心类型

  - Server：主服务器，持有 orchestra.App 与 HTTP、Metrics 双端口
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - serve：构建 App，启动工作池、服务巡检、Agent 健康刷新和 HTTP 端点
  - services：一次性检查所有后端服务并打印表格，存在不健康服务时退出码为 2
  - 端点：/health、/healthz（存活），/ready、/readyz（服务与数据库就绪），/version
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、RateLimiter（基于 IP）
  - 优雅关闭：信号监听 → 关闭 HTTP → 排空工作池 → 关闭 Metrics → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
