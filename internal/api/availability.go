package api

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	availabilityServiceName = "courtbook.availability.v1.AvailabilityService"
	methodListCourts        = "/" + availabilityServiceName + "/ListCourts"
	methodGetAvailability   = "/" + availabilityServiceName + "/GetAvailability"
)

// AvailabilityServer is the read-only partner API. Requests and responses
// are free-form structs so partners need no generated stubs.
type AvailabilityServer interface {
	ListCourts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListCourts", Handler: unaryHandler(methodListCourts, AvailabilityServer.ListCourts)},
		{MethodName: "GetAvailability", Handler: unaryHandler(methodGetAvailability, AvailabilityServer.GetAvailability)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "courtbook/availability/v1/availability.proto",
}

func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

type structMethod func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type AvailabilityService struct {
	bookings Bookings
}

func NewAvailabilityService(bookings Bookings) *AvailabilityService {
	return &AvailabilityService{bookings: bookings}
}

func (s *AvailabilityService) ListCourts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	courts, err := s.bookings.ListResources(ctx)
	if err != nil {
		return nil, grpcStatus(err)
	}
	out := make([]any, 0, len(courts))
	for _, c := range courts {
		out = append(out, map[string]any{
			"id":          c.ID,
			"name":        c.Name,
			"category":    c.Category,
			"hourly_rate": c.HourlyRate,
		})
	}
	return newStruct(map[string]any{"courts": out})
}

func (s *AvailabilityService) GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	courtID := int64(fields["court_id"].GetNumberValue())
	if courtID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "court_id is required")
	}

	dateStr := strings.TrimSpace(fields["date"].GetStringValue())
	if dateStr == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}
	date, err := time.ParseInLocation(dateLayout, dateStr, s.bookings.Location())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid date format; expected YYYY-MM-DD")
	}

	slots, err := s.bookings.GetAvailability(ctx, courtID, date)
	if err != nil {
		return nil, grpcStatus(err)
	}
	out := make([]any, 0, len(slots))
	for _, slot := range slots {
		out = append(out, map[string]any{
			"start":     slot.Start,
			"end":       slot.End,
			"available": slot.Available,
		})
	}
	return newStruct(map[string]any{
		"court_id": courtID,
		"date":     dateStr,
		"slots":    out,
	})
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return st, nil
}
