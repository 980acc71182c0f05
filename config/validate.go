package config

import (
	"fmt"
	"sort"
	"strings"
)

var (
	knownModes    = map[string]bool{"": true, "local": true, "containerized": true, "distributed": true}
	knownSchemes  = map[string]bool{"": true, "http": true, "https": true, "redis": true, "tcp": true, "postgres": true, "mysql": true}
	knownBackends = map[string]bool{"memory": true, "redis": true}
	knownDrivers  = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}
)

// Validate 校验启动期配置错误，汇总所有问题后一次返回
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if !knownModes[strings.ToLower(c.Deployment.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown deployment mode %q", c.Deployment.Mode))
	}

	// 服务按名称排序，错误信息稳定
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := c.Services[name]
		if s.Port <= 0 || s.Port > 65535 {
			errs = append(errs, fmt.Sprintf("service %s: invalid port %d", name, s.Port))
		}
		if !knownSchemes[s.Scheme] {
			errs = append(errs, fmt.Sprintf("service %s: unknown scheme %q", name, s.Scheme))
		}
		for mode := range s.Hosts {
			if mode == "" || !knownModes[mode] {
				errs = append(errs, fmt.Sprintf("service %s: unknown host mode %q", name, mode))
			}
		}
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("agents[%d]: id is required", i))
		} else if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("agents[%d]: duplicate id %s", i, a.ID))
		}
		seen[a.ID] = true
		if a.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("agents[%d]: base_url is required", i))
		}
	}

	w := c.Registry.Weights
	if w.TaskType < 0 || w.Load < 0 || w.SuccessRate < 0 {
		errs = append(errs, "registry weights must not be negative")
	} else if w.TaskType+w.Load+w.SuccessRate == 0 {
		errs = append(errs, "registry weights must not all be zero")
	}

	if c.Client.MaxAttempts < 1 {
		errs = append(errs, "client max_attempts must be at least 1")
	}
	if c.Breaker.Threshold < 1 {
		errs = append(errs, "breaker threshold must be at least 1")
	}

	if c.Pool.Workers <= 0 {
		errs = append(errs, "pool workers must be positive")
	}
	if !knownBackends[c.Pool.Backend] {
		errs = append(errs, fmt.Sprintf("unknown pool backend %q", c.Pool.Backend))
	}

	if c.Workflow.MaxParallelSteps <= 0 {
		errs = append(errs, "workflow max_parallel_steps must be positive")
	}

	if c.Database.Enabled && !knownDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
