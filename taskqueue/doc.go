// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package taskqueue runs typed background tasks on a fixed set of workers.

Tasks are enqueued on a Queue: MemoryQueue for a single process, or
RedisQueue (LPUSH / BRPOP on one list) when several processes share the
work. Workers dequeue with a bounded wait, claim the task so a duplicate
delivery is never executed twice, and dispatch it to the Handler
registered for its type under a per-task timeout.

Every task ends in a Result with status completed or failed. Unknown task
types fail with NOT_FOUND and handler panics fail with INTERNAL_ERROR; a
worker never dies on a bad task. Results are retained for AwaitResult and
published on the EventBus as task_completed / task_failed.

Shutdown rejects new submissions, waits for the queue and in-flight tasks
to drain and then stops the workers.
*/
package taskqueue
