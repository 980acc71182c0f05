// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Orchestra 进程自身的 HTTP 端点实现。

# 核心类型

  - HealthHandler：存活（/health, /healthz）、就绪（/ready）与版本（/version）
  - HealthCheck：可插拔就绪检查接口
  - ServiceCheck：基于 service.Registry 的后端服务就绪检查
  - PingCheck：包装数据库、Redis 等的 Ping 函数
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - ErrorCode → HTTP 状态码映射：HTTPStatus
  - 就绪检查并发执行，任一失败返回 503
*/
package handlers
