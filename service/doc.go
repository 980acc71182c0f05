// Copyright (c) Orchestra Authors.
// Licensed under the MIT License.

/*
Package service resolves backing services for the current deployment mode
and tracks their health.

Mode is detected once at startup: ORCHESTRA_DEPLOYMENT_MODE wins, then
KUBERNETES_SERVICE_HOST selects distributed and /.dockerenv selects
containerized. Anything else is local. A service resolves to an explicit
Host override, a per-mode host, or the mode default (localhost, the service
name, or name.domain).

Every service owns a circuit breaker. CheckHealth answers circuit_open
without touching the network while the breaker rejects, and otherwise runs
the scheme's Prober (HTTP GET, Redis PING or TCP dial) with the configured
timeout and attempt count. All attempts of one check count as a single
breaker outcome.

CheckAll runs checks concurrently and isolates panics; StartMonitor repeats
it on an interval until the context ends.
*/
package service
