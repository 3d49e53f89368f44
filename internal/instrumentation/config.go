package instrumentation

import (
	"errors"
	"fmt"
)

// Exporter names accepted in Config.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Config describes how the responder exports telemetry. cmd builds it from
// the instrumentation and audit sections of the application config.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// InstanceID is recorded as service.instance.id; the hostname when empty.
	InstanceID string

	MetricsExporter string
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme. TLS is used unless
	// OTLPInsecure is set.
	OTLPEndpoint string
	OTLPInsecure bool

	// SamplingRate is the ratio of root traces kept, in [0, 1].
	SamplingRate float64

	// DetailedLabels adds sender domains to escalation metrics.
	DetailedLabels bool

	Audit AuditConfig
}

// AuditConfig controls the per-run audit log line.
type AuditConfig struct {
	Enabled bool

	// IncludePII logs full sender addresses and the question text instead of
	// anonymized identifiers. Audit logs must then be stored with matching
	// access controls.
	IncludePII bool
}

// ErrInvalidConfig is wrapped by Validate failures.
var ErrInvalidConfig = errors.New("invalid instrumentation config")

// Validate reports exporter settings NewProvider cannot act on. A disabled
// config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.MetricsExporter {
	case ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("%w: unsupported metrics exporter %q", ErrInvalidConfig, c.MetricsExporter)
	}
	switch c.TracingExporter {
	case ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("%w: unsupported tracing exporter %q", ErrInvalidConfig, c.TracingExporter)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("%w: sampling rate %g outside [0, 1]", ErrInvalidConfig, c.SamplingRate)
	}
	if c.OTLPEndpoint == "" && (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) {
		return fmt.Errorf("%w: otlp exporter needs an endpoint", ErrInvalidConfig)
	}
	return nil
}
