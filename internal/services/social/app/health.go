package app

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/louisbranch/socialsync/internal/platform/errors"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// graphServicePrefix names per local user health services, for example
// "socialsync.graph/2533274800000000".
const graphServicePrefix = "socialsync.graph/"

// GraphStatus reports the readiness of one local user's graph.
type GraphStatus interface {
	Initialized(localUserID string) (bool, error)
}

// healthServer answers graph services from the engine and every other
// service from the embedded health server.
type healthServer struct {
	*health.Server
	graphs GraphStatus
}

func newHealthServer(graphs GraphStatus) *healthServer {
	return &healthServer{Server: health.NewServer(), graphs: graphs}
}

// Check reports SERVING once the local user's graph finished its first load
// and NOT_SERVING before that. Unknown local users are NotFound.
func (s *healthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	localUserID, ok := strings.CutPrefix(req.GetService(), graphServicePrefix)
	if !ok {
		return s.Server.Check(ctx, req)
	}
	initialized, err := s.graphs.Initialized(localUserID)
	if err != nil {
		return nil, grpcError(err)
	}
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if initialized {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	return &grpc_health_v1.HealthCheckResponse{Status: status}, nil
}

// grpcError converts domain errors to statuses carrying error info.
func grpcError(err error) error {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.ToGRPCStatus()
	}
	return err
}
