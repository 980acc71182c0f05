// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package orchestra wires the orchestration core into one process.

New builds the circuit breaker registries, the service registry, the agent
registry and resilient client, the workflow planner and executor, the task
queue and worker pool, and optionally the persistence store, all from a
single config.Config. Components are passed their collaborators explicitly.

The built-in "workflow" task type runs a goal through the workflow engine:

	app, err := orchestra.New(cfg, logger, orchestra.WithMetrics(collector))
	if err != nil {
		return err
	}
	app.Start(ctx)
	defer app.Shutdown(context.Background())

	id, _ := app.SubmitGoal(ctx, "scan the network and report findings", nil)
	res, _ := app.AwaitResult(ctx, id, time.Minute)
*/
package orchestra
