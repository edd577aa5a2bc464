package source

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sourceadapterv1 "carbroker/gen/go/carbroker/sourceadapter/v1"
	"carbroker/pkg/telemetry"
)

// Server exposes a SimSource over the SourceAdapter endpoint the brokering
// core dials for adapterKind=grpc companies.
type Server struct {
	sourceadapterv1.UnimplementedSourceAdapterServiceServer
	src *SimSource
}

// NewServer wraps a SimSource.
func NewServer(src *SimSource) *Server {
	return &Server{src: src}
}

func (s *Server) Availability(ctx context.Context, req *sourceadapterv1.AvailabilityRequest) (*sourceadapterv1.AvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "SourceAdapter.Availability")
	defer span.End()

	offers, err := s.src.Availability(ctx, req.PickupUnlocode, req.DropoffUnlocode, req.VehicleClass)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.Error(codes.DeadlineExceeded, "supplier deadline elapsed")
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	resp := &sourceadapterv1.AvailabilityResponse{}
	for _, o := range offers {
		resp.Offers = append(resp.Offers, &sourceadapterv1.Offer{
			OfferRef:     o.OfferRef,
			VehicleClass: o.VehicleClass,
			PriceAmount:  o.PriceAmount,
			Currency:     o.Currency,
		})
	}
	return resp, nil
}

func (s *Server) BookingCreate(ctx context.Context, req *sourceadapterv1.BookingCreateRequest) (*sourceadapterv1.BookingCreateResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "SourceAdapter.BookingCreate")
	defer span.End()

	b, err := s.src.BookingCreate(ctx, req.AgreementRef, req.AgentId, req.IdempotencyKey)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.Error(codes.DeadlineExceeded, "supplier deadline elapsed")
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &sourceadapterv1.BookingCreateResponse{
		SupplierBookingRef: b.SupplierBookingRef,
		Status:             b.Status,
		Payload:            `{"agreement_ref":"` + b.AgreementRef + `"}`,
	}, nil
}

func (s *Server) BookingModify(ctx context.Context, req *sourceadapterv1.BookingModifyRequest) (*sourceadapterv1.BookingActionResponse, error) {
	b, err := s.src.BookingModify(ctx, req.SupplierBookingRef, req.Fields)
	if err != nil {
		return nil, bookingError(ctx, err)
	}
	return &sourceadapterv1.BookingActionResponse{Status: b.Status}, nil
}

func (s *Server) BookingCancel(ctx context.Context, req *sourceadapterv1.BookingRefRequest) (*sourceadapterv1.BookingActionResponse, error) {
	b, err := s.src.BookingCancel(ctx, req.SupplierBookingRef)
	if err != nil {
		return nil, bookingError(ctx, err)
	}
	return &sourceadapterv1.BookingActionResponse{Status: b.Status}, nil
}

func (s *Server) BookingCheck(ctx context.Context, req *sourceadapterv1.BookingRefRequest) (*sourceadapterv1.BookingActionResponse, error) {
	b, err := s.src.BookingCheck(ctx, req.SupplierBookingRef)
	if err != nil {
		return nil, bookingError(ctx, err)
	}
	return &sourceadapterv1.BookingActionResponse{Status: b.Status}, nil
}

func (s *Server) Locations(ctx context.Context, _ *sourceadapterv1.LocationsRequest) (*sourceadapterv1.LocationsResponse, error) {
	unlocodes, err := s.src.Locations(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &sourceadapterv1.LocationsResponse{Unlocodes: unlocodes}, nil
}

func (s *Server) Echo(ctx context.Context, req *sourceadapterv1.EchoRequest) (*sourceadapterv1.EchoResponse, error) {
	message, attrs, err := s.src.Echo(ctx, req.Message, req.Attrs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.Error(codes.DeadlineExceeded, "supplier deadline elapsed")
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &sourceadapterv1.EchoResponse{Message: message, Attrs: attrs}, nil
}

func bookingError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return status.Error(codes.DeadlineExceeded, "supplier deadline elapsed")
	}
	return status.Error(codes.NotFound, err.Error())
}
