package service

import (
	"fmt"
	"os"
	"strings"
)

// Mode is the deployment topology used to resolve service hosts.
type Mode string

const (
	ModeLocal         Mode = "local"
	ModeContainerized Mode = "containerized"
	ModeDistributed   Mode = "distributed"
)

// EnvDeploymentMode overrides mode detection.
const EnvDeploymentMode = "ORCHESTRA_DEPLOYMENT_MODE"

// ParseMode parses a deployment mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLocal, ModeContainerized, ModeDistributed:
		return m, nil
	default:
		return "", fmt.Errorf("unknown deployment mode %q", s)
	}
}

// DetectMode inspects the process environment: an explicit
// ORCHESTRA_DEPLOYMENT_MODE wins, a Kubernetes service host means
// distributed, /.dockerenv means containerized, anything else is local.
func DetectMode() Mode {
	return detectMode(os.Getenv, func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})
}

func detectMode(getenv func(string) string, exists func(string) bool) Mode {
	if v := getenv(EnvDeploymentMode); v != "" {
		if m, err := ParseMode(v); err == nil {
			return m
		}
	}
	if getenv("KUBERNETES_SERVICE_HOST") != "" {
		return ModeDistributed
	}
	if exists("/.dockerenv") {
		return ModeContainerized
	}
	return ModeLocal
}
