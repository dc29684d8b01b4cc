package app

import (
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/platform/gcp"
	"github.com/yungbote/imagerag/internal/platform/logger"
	"github.com/yungbote/imagerag/internal/platform/qdrant"
)

type BootstrapErrorCode string

const (
	BootstrapErrorInvalidProvider    BootstrapErrorCode = "invalid_provider"
	BootstrapErrorMissingCredentials BootstrapErrorCode = "missing_credentials"
	BootstrapErrorInvalidConfig      BootstrapErrorCode = "invalid_config"
	BootstrapErrorConnectFailed      BootstrapErrorCode = "connect_failed"
	BootstrapErrorProviderInitFailed BootstrapErrorCode = "provider_init_failed"
)

// BootstrapError is a failed provider selection for one concern (blob, caption, ...).
type BootstrapError struct {
	Concern  string
	Provider string
	Code     BootstrapErrorCode
	Cause    error
}

func (e *BootstrapError) Error() string {
	if e == nil {
		return "provider bootstrap failed"
	}
	return fmt.Sprintf(
		"%s provider bootstrap failed (code=%s provider=%q): %v",
		e.Concern,
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *BootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func bootstrapCode(err error) BootstrapErrorCode {
	var be *BootstrapError
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	return BootstrapErrorProviderInitFailed
}

// classifyBootstrapError maps client construction failures onto bootstrap codes.
func classifyBootstrapError(concern, provider string, err error) error {
	var be *BootstrapError
	if errors.As(err, &be) {
		return err
	}
	code := BootstrapErrorProviderInitFailed

	var urlErr *neturl.Error
	var netErr net.Error
	var qcfgErr *qdrant.ConfigError
	var scfgErr *gcp.ObjectStorageConfigError
	lower := strings.ToLower(err.Error())
	switch {
	case errors.As(err, &urlErr), errors.As(err, &netErr), qdrant.IsUnreachable(err),
		strings.Contains(lower, "connection refused"), strings.Contains(lower, "ready check failed"):
		code = BootstrapErrorConnectFailed
	case errors.As(err, &qcfgErr), errors.As(err, &scfgErr), qdrant.IsCode(err, qdrant.OperationErrorValidation):
		code = BootstrapErrorInvalidConfig
	case strings.Contains(lower, "missing") && (strings.Contains(lower, "key") || strings.Contains(lower, "token")):
		code = BootstrapErrorMissingCredentials
	}
	return &BootstrapError{Concern: concern, Provider: provider, Code: code, Cause: err}
}

func bootstrapFailed(log *logger.Logger, concern, provider string, err error) error {
	classified := classifyBootstrapError(concern, provider, err)
	code := bootstrapCode(classified)
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveProviderBootstrap(concern, provider, "error", string(code))
	}
	log.Error(
		"Provider bootstrap failed",
		"concern", concern,
		"provider", provider,
		"error_code", code,
		"error", classified,
	)
	return classified
}

func bootstrapOK(log *logger.Logger, concern, provider string, kv ...interface{}) {
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveProviderBootstrap(concern, provider, "success", "none")
	}
	log.Info("Provider selected", append([]interface{}{"concern", concern, "provider", provider}, kv...)...)
}

func bootstrapDegraded(log *logger.Logger, concern, provider, code, msg string) {
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveProviderBootstrap(concern, provider, "degraded", code)
	}
	log.Warn(msg, "concern", concern, "provider", provider, "code", code)
}
