// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package retry 提供有界次数的指数退避重试器。

第 i 次失败（从 0 开始）之后等待 InitialDelay * Multiplier^i，
等待期间监听 context 取消，不阻塞其他并发调用。
只有被 Classifier 判定为可重试的错误（默认 types.IsRetryable，
即超时、连接失败、5xx 类错误）才会重试；次数耗尽时返回
*ExhaustedError，Unwrap 得到最后一次错误。
*/
package retry
