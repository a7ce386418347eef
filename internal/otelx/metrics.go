package otelx

import "go.opentelemetry.io/otel/metric"

// Metrics holds every metric instrument the daemon publishes.
type Metrics struct {
	TurnDuration      metric.Float64Histogram
	TurnRetries       metric.Int64Counter
	ModelCallDuration metric.Float64Histogram
	TokensUsed        metric.Int64Counter
	ToolCallDuration  metric.Float64Histogram
	ToolCallErrors    metric.Int64Counter
	SchedulerFirings  metric.Int64Counter
	SchedulerFailures metric.Int64Counter
	ActiveSubagents   metric.Int64UpDownCounter
	SubagentSpawns    metric.Int64Counter
	SubagentRejects   metric.Int64Counter
	HeartbeatRuns     metric.Int64Counter
}

// NewMetrics creates every instrument from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.TurnDuration, err = meter.Float64Histogram("steward.turn.duration",
		metric.WithDescription("Orchestrator turn duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.TurnRetries, err = meter.Int64Counter("steward.turn.retries",
		metric.WithDescription("Retry loop iterations across all turns")); err != nil {
		return nil, err
	}
	if m.ModelCallDuration, err = meter.Float64Histogram("steward.model.duration",
		metric.WithDescription("Model client call duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.TokensUsed, err = meter.Int64Counter("steward.model.tokens",
		metric.WithDescription("Total tokens consumed")); err != nil {
		return nil, err
	}
	if m.ToolCallDuration, err = meter.Float64Histogram("steward.tool.duration",
		metric.WithDescription("Tool dispatch duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ToolCallErrors, err = meter.Int64Counter("steward.tool.errors",
		metric.WithDescription("Tool call error count")); err != nil {
		return nil, err
	}
	if m.SchedulerFirings, err = meter.Int64Counter("steward.scheduler.firings",
		metric.WithDescription("Scheduled job firings")); err != nil {
		return nil, err
	}
	if m.SchedulerFailures, err = meter.Int64Counter("steward.scheduler.failures",
		metric.WithDescription("Scheduled job firing failures")); err != nil {
		return nil, err
	}
	if m.ActiveSubagents, err = meter.Int64UpDownCounter("steward.subagent.active",
		metric.WithDescription("Currently running subagent runs")); err != nil {
		return nil, err
	}
	if m.SubagentSpawns, err = meter.Int64Counter("steward.subagent.spawns",
		metric.WithDescription("Subagent spawn attempts that were admitted")); err != nil {
		return nil, err
	}
	if m.SubagentRejects, err = meter.Int64Counter("steward.subagent.rejects",
		metric.WithDescription("Subagent spawn attempts rejected by limits")); err != nil {
		return nil, err
	}
	if m.HeartbeatRuns, err = meter.Int64Counter("steward.heartbeat.runs",
		metric.WithDescription("Heartbeat fires that ran (not coalesced)")); err != nil {
		return nil, err
	}

	return m, nil
}
