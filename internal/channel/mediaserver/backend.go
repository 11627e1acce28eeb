// Package mediaserver implements the channel strategy that delegates media
// negotiation and relay to an external media server. Per session the server
// allocates a processing pipeline and a media endpoint; offers and ICE
// candidates are forwarded to the endpoint. A [Supervisor] watches the
// control connection and reconnects with exponential backoff, so the
// strategy degrades to unavailable instead of failing hard when the server
// is unreachable.
package mediaserver

import "context"

// Backend is the control-plane contract of the external media server. The
// production implementation is [Client]; tests substitute a fake.
type Backend interface {
	// CreatePipeline allocates a media processing pipeline and returns its ID.
	CreatePipeline(ctx context.Context) (string, error)

	// ReleasePipeline releases the pipeline and everything built on it.
	ReleasePipeline(ctx context.Context, pipelineID string) error

	// CreateEndpoint allocates a media endpoint inside the pipeline.
	CreateEndpoint(ctx context.Context, pipelineID string) (string, error)

	// ReleaseEndpoint releases the endpoint.
	ReleaseEndpoint(ctx context.Context, endpointID string) error

	// ProcessOffer forwards the client's SDP offer to the endpoint and
	// returns the server's SDP answer.
	ProcessOffer(ctx context.Context, endpointID, offer string) (string, error)

	// GatherCandidates starts local ICE candidate gathering on the endpoint.
	GatherCandidates(ctx context.Context, endpointID string) error

	// AddCandidate forwards a remote ICE candidate to the endpoint.
	AddCandidate(ctx context.Context, endpointID, candidate, sdpMid string, sdpMLineIndex int) error

	// Ping checks that the control connection is alive.
	Ping(ctx context.Context) error

	// Close tears down the control connection.
	Close() error
}
