package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/osa030/onair/internal/app/relay"
)

// GateAdminName is the fully-qualified name of the gate admin service.
const GateAdminName = "onair.v1.GateAdmin"

// Procedure paths of the gate admin service.
const (
	GateAdminDrainProcedure      = "/" + GateAdminName + "/Drain"
	GateAdminQueueStatsProcedure = "/" + GateAdminName + "/QueueStats"
)

// DrainRequest is the Drain request.
type DrainRequest struct{}

// DrainResponse is the Drain response.
type DrainResponse struct {
	TotalRetried int `json:"total_retried"`
	Delivered    int `json:"delivered"`
	FailedCount  int `json:"failed_count"`
	Untried      int `json:"untried"`
}

// QueueStatsRequest is the QueueStats request.
type QueueStatsRequest struct{}

// QueueStatsResponse is the QueueStats response.
type QueueStatsResponse struct {
	Pending int `json:"pending"`
}

// Drainer is the queue surface exposed to admins.
type Drainer interface {
	Drain(ctx context.Context) (relay.DrainReport, error)
	Pending(ctx context.Context) (int, error)
}

// GateAdminService implements the GateAdmin RPC.
type GateAdminService struct {
	forwarder Drainer
}

// NewGateAdminService creates a new GateAdminService.
func NewGateAdminService(forwarder Drainer) *GateAdminService {
	return &GateAdminService{forwarder: forwarder}
}

// Drain redelivers the fallback queue.
func (s *GateAdminService) Drain(
	ctx context.Context,
	req *connect.Request[DrainRequest],
) (*connect.Response[DrainResponse], error) {
	report, err := s.forwarder.Drain(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DrainResponse{
		TotalRetried: report.TotalRetried,
		Delivered:    report.Delivered,
		FailedCount:  report.FailedCount,
		Untried:      report.Untried,
	}), nil
}

// QueueStats reports the fallback queue depth.
func (s *GateAdminService) QueueStats(
	ctx context.Context,
	req *connect.Request[QueueStatsRequest],
) (*connect.Response[QueueStatsResponse], error) {
	n, err := s.forwarder.Pending(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&QueueStatsResponse{Pending: n}), nil
}

// NewGateAdminHandler builds an HTTP handler from the service implementation.
func NewGateAdminHandler(svc *GateAdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	drain := connect.NewUnaryHandler(GateAdminDrainProcedure, svc.Drain, opts...)
	queueStats := connect.NewUnaryHandler(GateAdminQueueStatsProcedure, svc.QueueStats, opts...)

	return "/" + GateAdminName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GateAdminDrainProcedure:
			drain.ServeHTTP(w, r)
		case GateAdminQueueStatsProcedure:
			queueStats.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
