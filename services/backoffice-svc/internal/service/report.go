// Package service exposes the export surface: generate a snapshot report in
// any supported format, optionally keep it for later download.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"

	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	pkgerrors "carbroker/pkg/apperror"
	"carbroker/pkg/config"
	"carbroker/pkg/logger"
	"carbroker/pkg/telemetry"
	"carbroker/services/backoffice-svc/internal/generator"
	"carbroker/services/backoffice-svc/internal/repository"
)

// ReportService implements backofficev1.BackofficeServiceServer.
type ReportService struct {
	backofficev1.UnimplementedBackofficeServiceServer
	store     repository.ReportStore
	snapshots repository.SnapshotReader
	cfg       *config.BackofficeConfig
	now       func() time.Time
}

// NewReportService creates the service.
func NewReportService(store repository.ReportStore, snapshots repository.SnapshotReader, cfg *config.BackofficeConfig) *ReportService {
	return &ReportService{
		store:     store,
		snapshots: snapshots,
		cfg:       cfg,
		now:       time.Now,
	}
}

// GenerateReport builds one report and returns its bytes; with save=true
// the document is also stored until retention expires.
func (s *ReportService) GenerateReport(ctx context.Context, req *backofficev1.GenerateReportRequest) (*backofficev1.GenerateReportResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReportService.GenerateReport")
	defer span.End()

	gen, err := generator.New(generator.Format(req.Format))
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, err.Error(), "format"))
	}

	data, err := s.buildData(ctx, req)
	if err != nil {
		return nil, err
	}

	content, err := gen.Generate(ctx, data)
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "report generation failed"))
	}

	if s.cfg != nil && s.cfg.MaxReportSizeBytes > 0 && int64(len(content)) > s.cfg.MaxReportSizeBytes {
		return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeInvalidParam, "report exceeds the configured size limit"))
	}

	resp := &backofficev1.GenerateReportResponse{
		Filename:  generator.Filename(data, gen),
		MimeType:  gen.MimeType(),
		SizeBytes: int64(len(content)),
		Content:   content,
	}

	if req.Save {
		retention := 7 * 24 * time.Hour
		if s.cfg != nil && s.cfg.RetentionPeriod > 0 {
			retention = s.cfg.RetentionPeriod
		}
		stored := &repository.StoredReport{
			ID:        uuid.New().String(),
			CompanyID: req.CompanyId,
			Kind:      string(data.Kind),
			Format:    string(gen.Format()),
			Title:     req.Title,
			Filename:  resp.Filename,
			MimeType:  resp.MimeType,
			SizeBytes: resp.SizeBytes,
			Content:   content,
			CreatedAt: s.now(),
			ExpiresAt: s.now().Add(retention),
		}
		if err := s.store.Save(ctx, stored); err != nil {
			// The caller still gets the bytes; storage is best effort.
			logger.Log.Warn("Failed to store report", "error", err)
		} else {
			resp.ReportId = stored.ID
		}
	}

	return resp, nil
}

// buildData fetches the rows for the requested kind and window.
func (s *ReportService) buildData(ctx context.Context, req *backofficev1.GenerateReportRequest) (*generator.ReportData, error) {
	to := s.now()
	if req.ToTime != nil {
		to = req.ToTime.AsTime()
	}
	from := to.Add(-30 * 24 * time.Hour)
	if req.FromTime != nil {
		from = req.FromTime.AsTime()
	}

	options := &generator.Options{Title: req.Title}
	if s.cfg != nil {
		options.CompanyName = s.cfg.DefaultCompanyName
		options.Currency = s.cfg.DefaultCurrency
		options.Theme = s.cfg.DefaultTheme
		options.MaxRows = s.cfg.MaxRowsInTable
	}

	data := &generator.ReportData{
		Kind:        generator.Kind(req.Kind),
		Options:     options,
		GeneratedAt: s.now(),
	}

	var err error
	switch data.Kind {
	case generator.KindBookings:
		data.Bookings, err = s.snapshots.Bookings(ctx, from, to)
	case generator.KindAgreements:
		data.Agreements, err = s.snapshots.Agreements(ctx)
	case generator.KindSourceHealth:
		data.SourceHealth, err = s.snapshots.SourceHealth(ctx)
	case generator.KindSummary:
		data.Summary, err = s.snapshots.Summary(ctx, from, to)
	default:
		return nil, pkgerrors.ToGRPC(pkgerrors.NewWithField(pkgerrors.CodeInvalidParam, "unknown report kind "+req.Kind, "kind"))
	}
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to read report data"))
	}
	return data, nil
}

// GetReport returns stored report metadata.
func (s *ReportService) GetReport(ctx context.Context, req *backofficev1.GetReportRequest) (*backofficev1.GetReportResponse, error) {
	report, err := s.load(ctx, req.ReportId)
	if err != nil {
		return nil, err
	}
	return &backofficev1.GetReportResponse{Report: toSummaryProto(report)}, nil
}

// DownloadReport returns a stored report's bytes.
func (s *ReportService) DownloadReport(ctx context.Context, req *backofficev1.DownloadReportRequest) (*backofficev1.DownloadReportResponse, error) {
	report, err := s.load(ctx, req.ReportId)
	if err != nil {
		return nil, err
	}
	return &backofficev1.DownloadReportResponse{
		Filename: report.Filename,
		MimeType: report.MimeType,
		Content:  report.Content,
	}, nil
}

func (s *ReportService) load(ctx context.Context, id string) (*repository.StoredReport, error) {
	report, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeNotFound, "report not found"))
		}
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to load report"))
	}
	return report, nil
}

// ListReports lists a company's stored reports.
func (s *ReportService) ListReports(ctx context.Context, req *backofficev1.ListReportsRequest) (*backofficev1.ListReportsResponse, error) {
	reports, total, err := s.store.List(ctx, req.CompanyId, int(req.Limit), int(req.Offset))
	if err != nil {
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to list reports"))
	}

	resp := &backofficev1.ListReportsResponse{TotalCount: total}
	for _, r := range reports {
		resp.Reports = append(resp.Reports, &backofficev1.ReportInfo{
			ReportId:  r.ID,
			CompanyId: r.CompanyID,
			Kind:      r.Kind,
			Format:    r.Format,
			Title:     r.Title,
			Filename:  r.Filename,
			SizeBytes: r.SizeBytes,
			CreatedAt: timestamppb.New(r.CreatedAt),
			ExpiresAt: timestamppb.New(r.ExpiresAt),
		})
	}
	return resp, nil
}

// DeleteReport removes a stored report.
func (s *ReportService) DeleteReport(ctx context.Context, req *backofficev1.DeleteReportRequest) (*backofficev1.DeleteReportResponse, error) {
	if err := s.store.Delete(ctx, req.ReportId); err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			return nil, pkgerrors.ToGRPC(pkgerrors.New(pkgerrors.CodeNotFound, "report not found"))
		}
		return nil, pkgerrors.ToGRPC(pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to delete report"))
	}
	return &backofficev1.DeleteReportResponse{Success: true}, nil
}

// RunCleanup deletes expired stored reports; called on a timer from main.
func (s *ReportService) RunCleanup(ctx context.Context) {
	deleted, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		logger.Log.Warn("Report cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Log.Info("Expired reports deleted", "count", deleted)
	}
}

func toSummaryProto(r *repository.StoredReport) *backofficev1.ReportInfo {
	return &backofficev1.ReportInfo{
		ReportId:  r.ID,
		CompanyId: r.CompanyID,
		Kind:      r.Kind,
		Format:    r.Format,
		Title:     r.Title,
		Filename:  r.Filename,
		SizeBytes: r.SizeBytes,
		CreatedAt: timestamppb.New(r.CreatedAt),
		ExpiresAt: timestamppb.New(r.ExpiresAt),
	}
}
