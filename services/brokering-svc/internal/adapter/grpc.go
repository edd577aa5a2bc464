package adapter

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sourceadapterv1 "carbroker/gen/go/carbroker/sourceadapter/v1"
	"carbroker/pkg/apperror"
	"carbroker/pkg/client"
	"carbroker/pkg/domain"
)

// GRPCAdapter talks to an out-of-process source over its SourceAdapter
// endpoint. The passed ctx deadline is propagated as the gRPC deadline, so
// the source sees the same budget the dispatcher enforces.
type GRPCAdapter struct {
	sourceID string
	conn     *grpc.ClientConn
	client   sourceadapterv1.SourceAdapterServiceClient
}

// NewGRPCAdapter dials a source's adapter endpoint.
func NewGRPCAdapter(ctx context.Context, sourceID, endpoint string) (*GRPCAdapter, error) {
	conn, err := client.NewGRPCClient(ctx, client.ClientConfig{
		Address:      endpoint,
		Timeout:      30 * time.Second,
		MaxRetries:   1, // fan-out calls are never retried; retry lives at campaign level
		RetryBackoff: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeSourceError, "failed to dial source adapter")
	}

	return &GRPCAdapter{
		sourceID: sourceID,
		conn:     conn,
		client:   sourceadapterv1.NewSourceAdapterServiceClient(conn),
	}, nil
}

// translateError maps gRPC transport outcomes onto the stable error codes.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded, codes.Canceled:
		return apperror.Wrap(err, apperror.CodeTimeout, "source call deadline elapsed")
	case codes.NotFound:
		return apperror.Wrap(err, apperror.CodeNotFound, "source reports unknown reference")
	default:
		return apperror.Wrap(err, apperror.CodeSourceError, "source call failed")
	}
}

func (a *GRPCAdapter) Availability(ctx context.Context, req AvailabilityRequest) ([]Offer, error) {
	resp, err := a.client.Availability(ctx, &sourceadapterv1.AvailabilityRequest{
		PickupUnlocode:  req.Criteria.PickupUnlocode,
		DropoffUnlocode: req.Criteria.EffectiveDropoff(),
		PickupAt:        req.Criteria.PickupAt.UTC().Format(time.RFC3339),
		DropoffAt:       req.Criteria.DropoffAt.UTC().Format(time.RFC3339),
		DriverAge:       int32(req.Criteria.DriverAge),
		VehicleClass:    req.Criteria.VehicleClass,
		AgreementRef:    req.AgreementRef,
		RequestId:       req.RequestID,
	})
	if err != nil {
		return nil, translateError(err)
	}

	offers := make([]Offer, 0, len(resp.Offers))
	for _, o := range resp.Offers {
		offers = append(offers, Offer{
			OfferRef:     o.OfferRef,
			VehicleClass: o.VehicleClass,
			PriceAmount:  o.PriceAmount,
			Currency:     o.Currency,
			Payload:      o.Payload,
		})
	}
	return offers, nil
}

func (a *GRPCAdapter) BookingCreate(ctx context.Context, req BookingCreateRequest) (*BookingResult, error) {
	resp, err := a.client.BookingCreate(ctx, &sourceadapterv1.BookingCreateRequest{
		AgreementRef:        req.AgreementRef,
		SupplierOfferRef:    req.SupplierOfferRef,
		AgentBookingRef:     req.AgentBookingRef,
		IdempotencyKey:      req.IdempotencyKey,
		MiddlewareRequestId: req.MiddlewareRequestID,
		AgentId:             req.AgentID,
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &BookingResult{
		SupplierBookingRef: resp.SupplierBookingRef,
		Status:             domain.BookingStatus(resp.Status),
		Payload:            []byte(resp.Payload),
	}, nil
}

func (a *GRPCAdapter) BookingModify(ctx context.Context, req BookingModifyRequest) (*BookingResult, error) {
	resp, err := a.client.BookingModify(ctx, &sourceadapterv1.BookingModifyRequest{
		SupplierBookingRef: req.SupplierBookingRef,
		AgreementRef:       req.AgreementRef,
		Fields:             req.Fields,
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &BookingResult{
		SupplierBookingRef: req.SupplierBookingRef,
		Status:             domain.BookingStatus(resp.Status),
		Payload:            []byte(resp.Payload),
	}, nil
}

func (a *GRPCAdapter) BookingCancel(ctx context.Context, supplierBookingRef, agreementRef string) (*BookingResult, error) {
	resp, err := a.client.BookingCancel(ctx, &sourceadapterv1.BookingRefRequest{
		SupplierBookingRef: supplierBookingRef,
		AgreementRef:       agreementRef,
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &BookingResult{
		SupplierBookingRef: supplierBookingRef,
		Status:             domain.BookingStatus(resp.Status),
		Payload:            []byte(resp.Payload),
	}, nil
}

func (a *GRPCAdapter) BookingCheck(ctx context.Context, supplierBookingRef, agreementRef string) (*BookingResult, error) {
	resp, err := a.client.BookingCheck(ctx, &sourceadapterv1.BookingRefRequest{
		SupplierBookingRef: supplierBookingRef,
		AgreementRef:       agreementRef,
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &BookingResult{
		SupplierBookingRef: supplierBookingRef,
		Status:             domain.BookingStatus(resp.Status),
		Payload:            []byte(resp.Payload),
	}, nil
}

func (a *GRPCAdapter) Locations(ctx context.Context) ([]string, error) {
	resp, err := a.client.Locations(ctx, &sourceadapterv1.LocationsRequest{})
	if err != nil {
		return nil, translateError(err)
	}
	return resp.Unlocodes, nil
}

func (a *GRPCAdapter) Echo(ctx context.Context, message string, attrs map[string]string) (map[string]string, error) {
	resp, err := a.client.Echo(ctx, &sourceadapterv1.EchoRequest{
		Message: message,
		Attrs:   attrs,
	})
	if err != nil {
		return nil, translateError(err)
	}
	out := make(map[string]string, len(resp.Attrs)+1)
	for k, v := range resp.Attrs {
		out[k] = v
	}
	out["message"] = resp.Message
	return out, nil
}

func (a *GRPCAdapter) Close() error {
	return a.conn.Close()
}
