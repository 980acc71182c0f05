// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package workflow 把自然语言目标分解为带依赖的步骤，并分派给 Agent 执行。

# 概述

Planner 先用 Classifier 给目标分级（simple / moderate / complex），再套用对应
模板生成 1、4 或 8 个步骤，步骤 ID 为 step_1..step_n。每个步骤所需能力来自
静态查找表：ActionKind 的能力集合并上 Agent 类型的能力集合。规划阶段通过
agent.Registry.FindBestAgent 做软分配，执行前会重新校验。

Executor 按拓扑波次推进：依赖全部成功的步骤进入当前波次并发执行（上限
MaxParallelSteps）；依赖失败、被跳过或不存在的步骤标记为 skipped
（DEPENDENCY_UNMET）；互相等待的环上步骤同样跳过。派发前预留 Agent，
容量不足时带退避等待（上限 BusyWait），结果记录后总会释放。

# 核心类型

  - Classifier：关键词分级与主动作识别，可被上下文 complexity 覆盖
  - Plan / Step：步骤列表，Validate 检查重复 ID、未知依赖与环
  - Planner：模板化规划
  - Executor：依赖门控的波次执行器
  - Result：completed / partially_completed / failed 以及成功率
  - Engine.ExecuteGoal：规划 + 执行 + 持久化 + 指标
*/
package workflow
