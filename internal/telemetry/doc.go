// Package telemetry wraps OpenTelemetry SDK initialization, providing a
// centrally configured TracerProvider and MeterProvider for the service.
// When telemetry is disabled, noop implementations are used and no
// external service is contacted.
package telemetry
