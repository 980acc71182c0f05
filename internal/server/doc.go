// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/WaitForShutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时，可由 config.ServerConfig 通过 ConfigFrom 得到。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM 或 ctx 结束。
  - 错误传播：Errors() 返回异步错误通道。

cmd/orchestra 用两个 Manager 分别承载 API 端口与 /metrics 端口。
*/
package server
