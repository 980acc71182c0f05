// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package types 提供 Orchestra 编排核心的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、service、taskqueue、
workflow 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - AgentRequest / AgentResponse：标准化的 Agent 调用请求与响应
  - Capability / CapabilitySet：能力标签枚举与集合运算
  - Error / ErrorCode：结构化错误体系，含 HTTPStatus、Retryable、Target 标记

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithWorkflowID / WithStepID / WithTaskID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewNotFoundError / NewUnhealthyError / NewTransientError / NewDependencyUnmetError
*/
package types
