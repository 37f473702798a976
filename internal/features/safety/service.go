package safety

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/features/reports"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store interface {
	Create(ctx context.Context, flag *Flag) error
	List(ctx context.Context, status string, page, limit int) ([]Flag, int64, error)
	Resolve(ctx context.Context, id primitive.ObjectID, status string, moderatorID primitive.ObjectID) (*Flag, error)
	ResolveForReport(ctx context.Context, reportID primitive.ObjectID, status string, moderatorID primitive.ObjectID) (int64, error)
}

// Reports is the slice of the report service moderation needs
type Reports interface {
	Get(ctx context.Context, id primitive.ObjectID, viewer *auth.User) (*reports.Report, error)
	Delete(ctx context.Context, user *auth.User, id primitive.ObjectID) error
}

type Service struct {
	store   Store
	reports Reports
	log     logrus.FieldLogger
}

func NewService(store Store, reports Reports, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: store, reports: reports, log: log}
}

// Flag records user's complaint about a report. Owners cannot flag their own.
func (s *Service) Flag(ctx context.Context, user *auth.User, reportID primitive.ObjectID, req *CreateFlagRequest) (*Flag, error) {
	report, err := s.reports.Get(ctx, reportID, user)
	if err != nil {
		return nil, err
	}
	if report.IsOwner(user.ID) {
		return nil, fmt.Errorf("%w: cannot flag your own report", apperrors.ErrValidation)
	}

	flag := &Flag{
		ReporterID: user.ID,
		ReportID:   reportID,
		Reason:     req.Reason,
		Details:    req.Details,
	}
	if err := s.store.Create(ctx, flag); err != nil {
		return nil, err
	}
	return flag, nil
}

func (s *Service) List(ctx context.Context, moderator *auth.User, q FlagListQuery) ([]Flag, *pagination.Pagination, error) {
	if !moderator.IsModerator() {
		return nil, nil, apperrors.ErrForbidden
	}
	switch q.Status {
	case "", StatusPending, StatusDismissed, StatusActioned:
	default:
		return nil, nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, q.Status)
	}

	page, limit := pagination.Normalize(q.Page, q.Limit, 50)
	flags, total, err := s.store.List(ctx, q.Status, page, limit)
	if err != nil {
		return nil, nil, err
	}
	return flags, pagination.New(page, limit, total), nil
}

// Resolve closes a pending flag. ActionRemove deletes the flagged report and
// closes the other pending flags on it as actioned.
func (s *Service) Resolve(ctx context.Context, moderator *auth.User, id primitive.ObjectID, action string) (*ResolveResponse, error) {
	if !moderator.IsModerator() {
		return nil, apperrors.ErrForbidden
	}

	status := StatusDismissed
	if action == ActionRemove {
		status = StatusActioned
	}

	flag, err := s.store.Resolve(ctx, id, status, moderator.ID)
	if err != nil {
		return nil, err
	}
	out := &ResolveResponse{Flag: flag}
	if action != ActionRemove {
		return out, nil
	}

	if err := s.reports.Delete(ctx, moderator, flag.ReportID); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	out.ReportRemoved = true

	others, err := s.store.ResolveForReport(ctx, flag.ReportID, StatusActioned, moderator.ID)
	if err != nil {
		logger.LogError(s.log, "safety", "Resolve", "close sibling flags", flag.ReportID.Hex(), err)
	}
	out.AlsoResolved = others

	logger.Module(s.log, "safety", "Resolve").
		WithField("flag_id", flag.ID.Hex()).
		WithField("report_id", flag.ReportID.Hex()).
		WithField("moderator_id", moderator.ID.Hex()).
		Info("report removed")
	return out, nil
}
