// Package grpcserver implements the ReviewService gRPC server.
//
// It delegates all business logic to review.Service and handles
// only the gRPC transport concerns: metadata extraction, error mapping,
// and conversion between the domain model and the wire messages.
//
// Requests and responses are google.protobuf.Struct values whose fields
// carry the same JSON names as the HTTP API, so the service can be called
// with any generic proto client without generated stubs.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"bikecatalog/catalog-service/internal/logging"
	"bikecatalog/catalog-service/internal/review"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "bikecatalog.review.v1.ReviewService"

// ReviewServer is the server API for ReviewService.
type ReviewServer interface {
	ListScrapedBikes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetReviewStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyChanges(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueueStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes ReviewService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReviewServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListScrapedBikes", ReviewServer.ListScrapedBikes),
		unary("SetReviewStatus", ReviewServer.SetReviewStatus),
		unary("DeleteReview", ReviewServer.DeleteReview),
		unary("ApplyChanges", ReviewServer.ApplyChanges),
		unary("QueueStats", ReviewServer.QueueStats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bikecatalog/review/v1/review.proto",
}

type unaryFunc func(ReviewServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReviewServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReviewServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// Register mounts srv on s.
func Register(s grpc.ServiceRegistrar, srv ReviewServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements ReviewServer.
type Server struct {
	svc *review.Service
}

// NewServer constructs a gRPC Server backed by the given review.Service.
func NewServer(svc *review.Service) *Server {
	return &Server{svc: svc}
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// ListScrapedBikes returns the review queue as {"records": [...]}.
func (s *Server) ListScrapedBikes(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	recs, err := s.svc.ListScraped(ctx)
	if err != nil {
		return nil, toGRPCError(ctx, err)
	}
	return toStruct(map[string]any{"records": recs})
}

type setStatusRequest struct {
	ReviewID int64 `json:"review_id"`
	review.DecisionInput
}

// SetReviewStatus records a decision. reviewer_id defaults to the
// x-reviewer-id metadata value.
func (s *Server) SetReviewStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in setStatusRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	if in.ReviewID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "review_id is required")
	}
	if in.ReviewerID == nil {
		in.ReviewerID = reviewerFromCtx(ctx)
	}

	d, err := s.svc.SetReviewStatus(ctx, in.ReviewID, in.DecisionInput)
	if err != nil {
		return nil, toGRPCError(ctx, err)
	}
	return toStruct(d)
}

// DeleteReview removes a rejected record.
func (s *Server) DeleteReview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ReviewID int64 `json:"review_id"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	if in.ReviewID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "review_id is required")
	}

	if err := s.svc.DeleteReview(ctx, in.ReviewID); err != nil {
		return nil, toGRPCError(ctx, err)
	}
	return toStruct(map[string]any{"review_id": in.ReviewID, "deleted": true})
}

// ApplyChanges applies an approved change set to one bicycle.
func (s *Server) ApplyChanges(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		BikeID  int64           `json:"bike_id"`
		Changes *review.Changes `json:"changes"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	if in.BikeID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "bike_id is required")
	}
	if in.Changes == nil {
		return nil, status.Error(codes.InvalidArgument, "changes is required")
	}

	res, err := s.svc.ApplyChanges(ctx, in.BikeID, *in.Changes)
	if err != nil {
		return nil, toGRPCError(ctx, err)
	}
	return toStruct(res)
}

// QueueStats returns record counts per review status.
func (s *Server) QueueStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.svc.QueueStats(ctx)
	if err != nil {
		return nil, toGRPCError(ctx, err)
	}
	return toStruct(st)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// reviewerFromCtx extracts the x-reviewer-id value forwarded by the caller
// via gRPC metadata.
func reviewerFromCtx(ctx context.Context) *string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	vals := md.Get("x-reviewer-id")
	if len(vals) == 0 || vals[0] == "" {
		return nil
	}
	return &vals[0]
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(ctx context.Context, err error) error {
	if errors.Is(err, review.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	if errors.Is(err, review.ErrInvalidState) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	var ve *review.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, ve.Msg)
	}
	logging.FromContext(ctx).Error().Err(err).Msg("grpc request failed")
	return status.Error(codes.Internal, "internal server error")
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(b, v); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	return nil
}

// toStruct encodes v into a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}
