// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package testutil 提供编排核心测试共享的辅助工具。

  - 上下文：TestContext，测试结束自动取消
  - 等待：WaitFor / WaitForChannel / AssertEventuallyTrue
  - 假时钟：FakeClock，Now 方法可注入各组件配置
  - 假 Agent：ScriptedAgent 按脚本返回响应或错误，并记录调用
*/
package testutil
