// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库连接池管理，支持 postgres、mysql
与纯 Go 实现的 sqlite 三种驱动。

# 核心类型

  - PoolManager：持有 GORM DB 实例与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close() 等生命周期方法，并在后台定时探活。
  - PoolConfig：连接池配置，可由 config.DatabaseConfig 映射得到。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - Open / Dialector：按 config.DatabaseConfig.Driver 选择方言并打开连接。
  - WithTransaction 单次事务执行；WithTransactionRetry 在死锁、序列化
    失败、连接中断等场景下按指数退避重试。
*/
package database
