// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package agent provides the agent directory and the resilient dispatch client.

# Overview

An Agent is anything that can Process an AgentRequest and answer a Ping:
LocalAgent wraps an in-process handler, HTTPAgent proxies a remote agent
over POST /process and GET /health.

Registry keeps one Profile (capabilities, workload, performance) and one
Health snapshot per agent behind a single mutex. FindBestAgent filters to
available agents whose capabilities cover the requirement and scores them
as

	w_type*task_type_match + w_load*(1 - workload/max) + w_rate*success_rate

with default weights 0.4 / 0.3 / 0.3. Reserve and Release move workload;
an agent at MaxConcurrentTasks is never selected.

Health is refreshed at most once per HealthRefreshInterval unless forced,
pings are bounded by PingTimeout and run outside the registry lock, and a
cached entry older than the max age is never reported healthy.

Client.Call looks the agent up, fails fast when it is unhealthy, runs the
call under exponential-backoff retry, and records per-agent-type
statistics. It never returns an error: failures come back as
AgentResponse{Status: "error"}.
*/
package agent
