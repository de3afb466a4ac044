// Package telemetry wraps the assignment engine's decision points in otel
// spans (the whole run, cluster construction, human sampling) and records
// approval-test outcomes as attributes on the run span.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service identity and span name constants. Of the service identity
// constants, only InstrumentName (the tracer name) is used by this package.
const (
	ServiceName      = "haio"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "qaorchestrator"
	InstrumentName   = "haio.assign"

	SpanNameBuildClusters  = "build_clusters"
	SpanNameSampleHuman    = "sample_human"
	SpanNameApprovalTest   = "approval_test"
	SpanNameAssignmentRun  = "assignment_run"
)

// Attribute key constants, namespaced under the "haio." prefix to avoid
// collisions with application-level spans sharing the same trace.
var (
	KeyMethod        = attribute.Key("haio.method")
	KeyTaskIndex     = attribute.Key("haio.task_index")
	KeyClusterKey    = attribute.Key("haio.cluster_key")
	KeyClusterSize   = attribute.Key("haio.cluster_size")
	KeyQuality       = attribute.Key("haio.quality_requirement")
	KeySignificance  = attribute.Key("haio.significance_level")
	KeyApproved      = attribute.Key("haio.approved")
	KeyPValue        = attribute.Key("haio.p_value")
)

func tracer() trace.Tracer {
	return otel.Tracer(InstrumentName)
}

// StartRun opens the top-level span for one cta/gta policy invocation,
// covering both the Phase 1 cluster build and the Phase 2 sampling loop.
// RecordApprovalTest and RecordPosteriorCheck annotate this span as each
// cluster's decision is made.
func StartRun(ctx context.Context, method string, q, alpha float64, n int) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanNameAssignmentRun, trace.WithAttributes(
		KeyMethod.String(method),
		KeyQuality.Float64(q),
		KeySignificance.Float64(alpha),
		KeyTaskIndex.Int(n),
	))
}

// StartClusterBuild opens a span around cta/gta's Phase 1 AI-cluster-
// building pass for a method invocation of n tasks.
func StartClusterBuild(ctx context.Context, method string, n int) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanNameBuildClusters, trace.WithAttributes(
		KeyMethod.String(method),
		KeyTaskIndex.Int(n),
	))
}

// StartHumanSample opens a span around a single human-worker sample taken
// for task i under method.
func StartHumanSample(ctx context.Context, method string, i int) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanNameSampleHuman, trace.WithAttributes(
		KeyMethod.String(method),
		KeyTaskIndex.Int(i),
	))
}

// RecordApprovalTest annotates span with the outcome of a single cluster's
// statistical approval test; it does not open a new span, since the test
// itself is synchronous CPU work nested inside the calling span.
func RecordApprovalTest(span trace.Span, clusterKey string, size int, q, pValue float64, approved bool) {
	span.SetAttributes(
		KeyClusterKey.String(clusterKey),
		KeyClusterSize.Int(size),
		KeyQuality.Float64(q),
		KeyPValue.Float64(pValue),
		KeyApproved.Bool(approved),
	)
}

// RecordPosteriorCheck annotates span with the outcome of gta's Monte-Carlo
// posterior check for one unapproved cluster, the Bayesian analogue of
// RecordApprovalTest (gta has no single p-value, only an approve/reject
// verdict over a sampled posterior).
func RecordPosteriorCheck(span trace.Span, clusterKey string, size int, q float64, approved bool) {
	span.SetAttributes(
		KeyClusterKey.String(clusterKey),
		KeyClusterSize.Int(size),
		KeyQuality.Float64(q),
		KeyApproved.Bool(approved),
	)
}
