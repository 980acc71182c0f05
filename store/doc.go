// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package store persists workflow runs and task records through gorm.

Open picks a postgres, mysql or pure-Go sqlite dialect from
config.DatabaseConfig and migrates the schema. Store satisfies
workflow.RunRecorder, and TaskEventHandler plugs into the task pool's
event bus so every finished task is recorded.

Step lists and task payloads are stored as JSON text columns. Lookups
of unknown IDs return a NOT_FOUND types.Error.
*/
package store
