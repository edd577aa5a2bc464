package handlers

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"

	gatewayv1 "carbroker/gen/go/carbroker/gateway/v1"
	"carbroker/gen/go/carbroker/gateway/v1/gatewayv1connect"
	"carbroker/pkg/config"
	"carbroker/services/gateway-svc/internal/clients"
)

const (
	statusHealthy = "HEALTHY"
)

// GatewayHandler implements gatewayv1connect.GatewayServiceHandler: the
// single client-facing surface over every backend service.
type GatewayHandler struct {
	gatewayv1connect.UnimplementedGatewayServiceHandler

	clients   *clients.Manager
	config    *config.Config
	startedAt time.Time

	// Sub-handlers
	auth         *AuthHandler
	availability *AvailabilityHandler
	booking      *BookingHandler
	agreement    *AgreementHandler
	coverage     *CoverageHandler
	echo         *EchoHandler
	analytics    *AnalyticsHandler
	history      *HistoryHandler
	report       *ReportHandler
	audit        *AuditHandler
}

// NewGatewayHandler wires the handler.
func NewGatewayHandler(clients *clients.Manager, cfg *config.Config) *GatewayHandler {
	h := &GatewayHandler{
		clients:   clients,
		config:    cfg,
		startedAt: time.Now(),
	}

	h.auth = NewAuthHandler(clients)
	h.availability = NewAvailabilityHandler(clients)
	h.booking = NewBookingHandler(clients)
	h.agreement = NewAgreementHandler(clients)
	h.coverage = NewCoverageHandler(clients)
	h.echo = NewEchoHandler(clients)
	h.analytics = NewAnalyticsHandler(clients)
	h.history = NewHistoryHandler(clients)
	h.report = NewReportHandler(clients)
	h.audit = NewAuditHandler(clients)

	return h
}

// ==================== Health & Info ====================

func (h *GatewayHandler) Health(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[gatewayv1.HealthResponse], error) {
	healthResults := h.clients.CheckHealth(ctx)

	services := make(map[string]*gatewayv1.ServiceHealth)
	allHealthy := true

	for name, health := range healthResults {
		services[name] = &gatewayv1.ServiceHealth{
			Name:      health.Name,
			Status:    health.Status,
			Address:   health.Address,
			LatencyMs: health.LatencyMs,
			Error:     health.Error,
			Version:   health.Version,
		}
		if health.Status != statusHealthy {
			allHealthy = false
		}
	}

	status := statusHealthy
	if !allHealthy {
		status = "DEGRADED"
	}

	return connect.NewResponse(&gatewayv1.HealthResponse{
		Status:    status,
		Timestamp: timestamppb.Now(),
		Services:  services,
	}), nil
}

func (h *GatewayHandler) ReadinessCheck(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[gatewayv1.ReadinessResponse], error) {
	healthResults := h.clients.CheckHealth(ctx)

	dependencies := make(map[string]bool)
	allReady := true

	for name, health := range healthResults {
		isHealthy := health.Status == statusHealthy
		dependencies[name] = isHealthy
		if !isHealthy {
			allReady = false
		}
	}

	return connect.NewResponse(&gatewayv1.ReadinessResponse{
		Ready:        allReady,
		Dependencies: dependencies,
	}), nil
}

func (h *GatewayHandler) Info(
	_ context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[gatewayv1.InfoResponse], error) {
	return connect.NewResponse(&gatewayv1.InfoResponse{
		Name:          h.config.App.Name,
		Version:       h.config.App.Version,
		Environment:   h.config.App.Environment,
		StartedAt:     timestamppb.New(h.startedAt),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Features: []string{
			"availability", "booking", "agreements",
			"coverage", "echo", "analytics", "history", "reports",
		},
		RateLimit: &gatewayv1.RateLimitInfo{
			Enabled:           h.config.RateLimit.Enabled,
			RequestsPerMinute: int32(h.config.RateLimit.Requests),
			BurstSize:         int32(h.config.RateLimit.BurstSize),
		},
		BuildInfo: map[string]string{
			"build_time": h.startedAt.Format(time.RFC3339),
		},
	}), nil
}

// ==================== Auth ====================

func (h *GatewayHandler) Register(
	ctx context.Context,
	req *connect.Request[gatewayv1.RegisterRequest],
) (*connect.Response[gatewayv1.AuthResponse], error) {
	return h.auth.Register(ctx, req)
}

func (h *GatewayHandler) Login(
	ctx context.Context,
	req *connect.Request[gatewayv1.LoginRequest],
) (*connect.Response[gatewayv1.AuthResponse], error) {
	return h.auth.Login(ctx, req)
}

func (h *GatewayHandler) RefreshToken(
	ctx context.Context,
	req *connect.Request[gatewayv1.RefreshTokenRequest],
) (*connect.Response[gatewayv1.AuthResponse], error) {
	return h.auth.RefreshToken(ctx, req)
}

func (h *GatewayHandler) Logout(
	ctx context.Context,
	req *connect.Request[gatewayv1.LogoutRequest],
) (*connect.Response[gatewayv1.LogoutResponse], error) {
	return h.auth.Logout(ctx, req)
}

func (h *GatewayHandler) GetProfile(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[gatewayv1.ProfileResponse], error) {
	return h.auth.GetProfile(ctx, req)
}

// ==================== Availability ====================

func (h *GatewayHandler) SubmitAvailability(
	ctx context.Context,
	req *connect.Request[gatewayv1.SubmitAvailabilityRequest],
) (*connect.Response[gatewayv1.SubmitAvailabilityResponse], error) {
	return h.availability.Submit(ctx, req)
}

func (h *GatewayHandler) PollAvailability(
	ctx context.Context,
	req *connect.Request[gatewayv1.PollAvailabilityRequest],
) (*connect.Response[gatewayv1.PollAvailabilityResponse], error) {
	return h.availability.Poll(ctx, req)
}

// ==================== Booking ====================

func (h *GatewayHandler) CreateBooking(
	ctx context.Context,
	req *connect.Request[gatewayv1.CreateBookingRequest],
) (*connect.Response[gatewayv1.BookingResponse], error) {
	return h.booking.Create(ctx, req)
}

func (h *GatewayHandler) ModifyBooking(
	ctx context.Context,
	req *connect.Request[gatewayv1.ModifyBookingRequest],
) (*connect.Response[gatewayv1.BookingResponse], error) {
	return h.booking.Modify(ctx, req)
}

func (h *GatewayHandler) CancelBooking(
	ctx context.Context,
	req *connect.Request[gatewayv1.BookingRefRequest],
) (*connect.Response[gatewayv1.BookingResponse], error) {
	return h.booking.Cancel(ctx, req)
}

func (h *GatewayHandler) CheckBooking(
	ctx context.Context,
	req *connect.Request[gatewayv1.BookingRefRequest],
) (*connect.Response[gatewayv1.BookingResponse], error) {
	return h.booking.Check(ctx, req)
}

// ==================== Agreements ====================

func (h *GatewayHandler) CreateDraftAgreement(
	ctx context.Context,
	req *connect.Request[gatewayv1.CreateDraftAgreementRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	return h.agreement.CreateDraft(ctx, req)
}

func (h *GatewayHandler) OfferAgreement(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementIdRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	return h.agreement.Offer(ctx, req)
}

func (h *GatewayHandler) AcceptAgreement(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementIdRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	return h.agreement.Accept(ctx, req)
}

func (h *GatewayHandler) SetAgreementStatus(
	ctx context.Context,
	req *connect.Request[gatewayv1.SetAgreementStatusRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	return h.agreement.SetStatus(ctx, req)
}

func (h *GatewayHandler) GetAgreement(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementIdRequest],
) (*connect.Response[gatewayv1.AgreementResponse], error) {
	return h.agreement.Get(ctx, req)
}

func (h *GatewayHandler) ListAgreements(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListAgreementsRequest],
) (*connect.Response[gatewayv1.ListAgreementsResponse], error) {
	return h.agreement.List(ctx, req)
}

// ==================== Coverage ====================

func (h *GatewayHandler) SyncSourceCoverage(
	ctx context.Context,
	req *connect.Request[gatewayv1.SyncSourceCoverageRequest],
) (*connect.Response[gatewayv1.SyncSourceCoverageResponse], error) {
	return h.coverage.Sync(ctx, req)
}

func (h *GatewayHandler) ListCoverageByAgreement(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListCoverageRequest],
) (*connect.Response[gatewayv1.ListCoverageResponse], error) {
	return h.coverage.List(ctx, req)
}

func (h *GatewayHandler) UpsertAgreementOverride(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementOverrideRequest],
) (*connect.Response[gatewayv1.AgreementOverrideResponse], error) {
	return h.coverage.UpsertOverride(ctx, req)
}

func (h *GatewayHandler) RemoveAgreementOverride(
	ctx context.Context,
	req *connect.Request[gatewayv1.AgreementOverrideRequest],
) (*connect.Response[gatewayv1.AgreementOverrideResponse], error) {
	return h.coverage.RemoveOverride(ctx, req)
}

// ==================== Echo ====================

func (h *GatewayHandler) SubmitEcho(
	ctx context.Context,
	req *connect.Request[gatewayv1.SubmitEchoRequest],
) (*connect.Response[gatewayv1.SubmitEchoResponse], error) {
	return h.echo.Submit(ctx, req)
}

func (h *GatewayHandler) GetEchoResults(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetEchoResultsRequest],
) (*connect.Response[gatewayv1.GetEchoResultsResponse], error) {
	return h.echo.GetResults(ctx, req)
}

func (h *GatewayHandler) WatchEchoResults(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetEchoResultsRequest],
	stream *connect.ServerStream[gatewayv1.GetEchoResultsResponse],
) error {
	return h.echo.Watch(ctx, req, stream)
}

// ==================== Analytics ====================

func (h *GatewayHandler) GetSourceBottlenecks(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetSourceBottlenecksRequest],
) (*connect.Response[gatewayv1.GetSourceBottlenecksResponse], error) {
	return h.analytics.GetSourceBottlenecks(ctx, req)
}

func (h *GatewayHandler) GetCoverageGaps(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetCoverageGapsRequest],
) (*connect.Response[gatewayv1.GetCoverageGapsResponse], error) {
	return h.analytics.GetCoverageGaps(ctx, req)
}

func (h *GatewayHandler) GetBookingFunnel(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetBookingFunnelRequest],
) (*connect.Response[gatewayv1.GetBookingFunnelResponse], error) {
	return h.analytics.GetBookingFunnel(ctx, req)
}

// ==================== History ====================

func (h *GatewayHandler) ListArchivedJobs(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListArchivedJobsRequest],
) (*connect.Response[gatewayv1.ListArchivedJobsResponse], error) {
	return h.history.ListArchivedJobs(ctx, req)
}

func (h *GatewayHandler) ListArchivedBookings(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListArchivedBookingsRequest],
) (*connect.Response[gatewayv1.ListArchivedBookingsResponse], error) {
	return h.history.ListArchivedBookings(ctx, req)
}

func (h *GatewayHandler) GetStatistics(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetStatisticsRequest],
) (*connect.Response[gatewayv1.GetStatisticsResponse], error) {
	return h.history.GetStatistics(ctx, req)
}

// ==================== Reports ====================

func (h *GatewayHandler) GenerateReport(
	ctx context.Context,
	req *connect.Request[gatewayv1.GenerateReportRequest],
) (*connect.Response[gatewayv1.GenerateReportResponse], error) {
	return h.report.Generate(ctx, req)
}

func (h *GatewayHandler) GetReport(
	ctx context.Context,
	req *connect.Request[gatewayv1.ReportIdRequest],
) (*connect.Response[gatewayv1.GetReportResponse], error) {
	return h.report.Get(ctx, req)
}

func (h *GatewayHandler) DownloadReport(
	ctx context.Context,
	req *connect.Request[gatewayv1.ReportIdRequest],
) (*connect.Response[gatewayv1.DownloadReportResponse], error) {
	return h.report.Download(ctx, req)
}

func (h *GatewayHandler) ListReports(
	ctx context.Context,
	req *connect.Request[gatewayv1.ListReportsRequest],
) (*connect.Response[gatewayv1.ListReportsResponse], error) {
	return h.report.List(ctx, req)
}

func (h *GatewayHandler) DeleteReport(
	ctx context.Context,
	req *connect.Request[gatewayv1.ReportIdRequest],
) (*connect.Response[gatewayv1.DeleteReportResponse], error) {
	return h.report.Delete(ctx, req)
}

// ==================== Audit ====================

func (h *GatewayHandler) GetAuditLogs(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetAuditLogsRequest],
) (*connect.Response[gatewayv1.GetAuditLogsResponse], error) {
	return h.audit.GetAuditLogs(ctx, req)
}

func (h *GatewayHandler) GetCompanyActivity(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetCompanyActivityRequest],
) (*connect.Response[gatewayv1.GetCompanyActivityResponse], error) {
	return h.audit.GetCompanyActivity(ctx, req)
}

func (h *GatewayHandler) GetAuditStats(
	ctx context.Context,
	req *connect.Request[gatewayv1.GetAuditStatsRequest],
) (*connect.Response[gatewayv1.GetAuditStatsResponse], error) {
	return h.audit.GetStats(ctx, req)
}
