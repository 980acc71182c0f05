// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

// Package tlsutil 为服务探测、远程 Agent 调用和 Redis 队列连接
// 提供统一的 TLS 客户端配置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
