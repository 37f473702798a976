package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/features/notifications"
	"github.com/xyz-asif/rewardz/internal/features/reports"
	"github.com/xyz-asif/rewardz/internal/pkg/cache"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// ReportStore is the report access a pass needs. *reports.Repository
// satisfies it.
type ReportStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*reports.Report, error)
	ListOpenByType(ctx context.Context, t string, since time.Time, limit int) ([]reports.Report, error)
	MarkReunited(ctx context.Context, ids ...primitive.ObjectID) (int64, error)
	UndoReunited(ctx context.Context, ids ...primitive.ObjectID) (int64, error)
}

// MatchStore persists candidates. *Repository satisfies it.
type MatchStore interface {
	Upsert(ctx context.Context, m *MatchCandidate) (bool, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*MatchCandidate, error)
	ListForReport(ctx context.Context, reportID primitive.ObjectID) ([]MatchCandidate, error)
	Review(ctx context.Context, id primitive.ObjectID, status string) (*MatchCandidate, error)
	RejectOthers(ctx context.Context, accepted *MatchCandidate) (int64, error)
	UndoAccept(ctx context.Context, accepted *MatchCandidate) error
	ClaimAlert(ctx context.Context, lostID, foundID primitive.ObjectID) (bool, error)
}

// Notifier delivers match alerts. *notifications.Dispatcher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, userID primitive.ObjectID, kind string, payload notifications.Payload) error
}

// Locker serializes passes per report. *cache.Store satisfies it.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Service is the auto-match orchestrator and the match review workflow
type Service struct {
	reports  ReportStore
	matches  MatchStore
	scorer   *Scorer
	notifier Notifier
	locker   Locker
	cfg      Config
	log      logrus.FieldLogger

	wg sync.WaitGroup
}

// NewService builds the orchestrator. notifier and locker may be nil.
func NewService(reportStore ReportStore, matchStore MatchStore, scorer *Scorer, notifier Notifier, locker Locker, cfg Config, log logrus.FieldLogger) *Service {
	def := DefaultConfig()
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.CandidateWindow <= 0 {
		cfg.CandidateWindow = def.CandidateWindow
	}
	if cfg.RecencyDays <= 0 {
		cfg.RecencyDays = def.RecencyDays
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if scorer == nil {
		scorer = defaultScorer
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Service{
		reports:  reportStore,
		matches:  matchStore,
		scorer:   scorer,
		notifier: notifier,
		locker:   locker,
		cfg:      cfg,
		log:      log,
	}
}

// Trigger runs a pass for reportID in the background with its own deadline.
// Errors are logged and never returned.
func (s *Service) Trigger(reportID primitive.ObjectID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()

		if _, err := s.AutoMatch(ctx, reportID); err != nil {
			logger.LogError(s.log, "matching", "Trigger", "auto-match pass failed", map[string]string{"reportId": reportID.Hex()}, err)
		}
	}()
}

// Wait blocks until every triggered pass has returned
func (s *Service) Wait() {
	s.wg.Wait()
}

// AutoMatch scores reportID against the open opposite-type pool, stores the
// best candidates and alerts both owners the first time a pair reaches high
// confidence
func (s *Service) AutoMatch(ctx context.Context, reportID primitive.ObjectID) (*PassResult, error) {
	start := time.Now()
	result := &PassResult{ReportID: reportID, PassID: uuid.NewString(), Kept: []MatchCandidate{}}
	log := logger.Module(s.log, "matching", "AutoMatch").
		WithField("reportId", reportID.Hex()).
		WithField("passId", result.PassID)

	if release := s.lock(ctx, reportID, log); release != nil {
		defer release()
	}

	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if report.Status != reports.StatusOpen {
		result.Skipped = true
		log.WithField("status", report.Status).Debug("report not open, skipping")
		return result, nil
	}

	since := time.Now().AddDate(0, 0, -s.cfg.RecencyDays)
	pool, err := s.reports.ListOpenByType(ctx, reports.Opposite(report.Type), since, s.cfg.CandidateWindow)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	result.Considered = len(pool)

	type scored struct {
		report *reports.Report
		result Result
	}
	var ranked []scored
	for i := range pool {
		candidate := &pool[i]
		if candidate.ID == report.ID || candidate.Type == report.Type {
			continue
		}
		res := s.scorer.Score(report, candidate)
		if res.Score > s.cfg.MinScore {
			ranked = append(ranked, scored{candidate, res})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].result.Score > ranked[j].result.Score
	})
	if len(ranked) > s.cfg.TopN {
		ranked = ranked[:s.cfg.TopN]
	}

	var fresh []*MatchCandidate
	var freshPairs []*reports.Report
	for _, r := range ranked {
		m := newCandidate(report, r.report, r.result)
		created, err := s.matches.Upsert(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("store match: %w", err)
		}
		result.Kept = append(result.Kept, *m)
		if created {
			result.Created++
		}
		if m.Confidence != ConfidenceHigh || m.Status != StatusPending {
			continue
		}
		// the other report's pass may already have alerted this pair
		first, err := s.matches.ClaimAlert(ctx, m.LostReportID, m.FoundReportID)
		if err != nil {
			log.WithField("matchId", m.ID.Hex()).Warn("match alert claim failed: " + err.Error())
			continue
		}
		if first {
			fresh = append(fresh, m)
			freshPairs = append(freshPairs, r.report)
		}
	}

	for i, m := range fresh {
		result.Notified += s.notifyOwners(ctx, m, report, freshPairs[i], log)
	}

	result.Duration = time.Since(start)
	result.DurationMilli = result.Duration.Milliseconds()
	log.WithField("considered", result.Considered).
		WithField("kept", len(result.Kept)).
		WithField("created", result.Created).
		WithField("notified", result.Notified).
		WithField("durationMs", result.DurationMilli).
		Info("auto-match pass complete")

	return result, nil
}

// lock takes the per-report lock. A held lock or a lock failure does not
// stop the pass; upserts keep concurrent passes consistent.
func (s *Service) lock(ctx context.Context, reportID primitive.ObjectID, log *logrus.Entry) func() {
	if s.locker == nil {
		return nil
	}
	release, err := s.locker.Obtain(ctx, "lock:match:"+reportID.Hex(), s.cfg.LockTTL)
	switch {
	case err == nil:
		return release
	case errors.Is(err, cache.ErrLockHeld):
		log.Debug("another pass holds the lock, continuing")
	default:
		log.Warn("match lock unavailable: " + err.Error())
	}
	return nil
}

// notifyOwners alerts each distinct owner of the pair and returns how many
// notifications were delivered
func (s *Service) notifyOwners(ctx context.Context, m *MatchCandidate, source, candidate *reports.Report, log *logrus.Entry) int {
	if s.notifier == nil {
		return 0
	}

	targets := map[primitive.ObjectID]*reports.Report{source.CreatorID: source}
	if _, ok := targets[candidate.CreatorID]; !ok {
		targets[candidate.CreatorID] = candidate
	}

	var mu sync.Mutex
	delivered := 0

	g, gctx := errgroup.WithContext(ctx)
	for userID, own := range targets {
		if userID.IsZero() {
			continue
		}
		userID, own := userID, own
		g.Go(func() error {
			payload := matchPayload(m, own)
			if err := s.notifier.Notify(gctx, userID, notifications.KindMatch, payload); err != nil {
				log.WithField("userId", userID.Hex()).Warn("match notification failed: " + err.Error())
				return nil
			}
			mu.Lock()
			delivered++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return delivered
}

// ListForReport returns the stored candidates for a report the viewer owns,
// best first. Each pair appears once.
func (s *Service) ListForReport(ctx context.Context, user *auth.User, reportID primitive.ObjectID) ([]MatchCandidate, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !report.IsOwner(user.ID) && !user.IsModerator() {
		return nil, fmt.Errorf("%w: only the creator can see matches", apperrors.ErrForbidden)
	}

	list, err := s.matches.ListForReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return dedupePairs(list), nil
}

// Refresh runs a pass synchronously for the owner and returns the stored
// candidates
func (s *Service) Refresh(ctx context.Context, user *auth.User, reportID primitive.ObjectID) (*PassResult, []MatchCandidate, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	if !report.IsOwner(user.ID) && !user.IsModerator() {
		return nil, nil, fmt.Errorf("%w: only the creator can refresh matches", apperrors.ErrForbidden)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	pass, err := s.AutoMatch(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}

	list, err := s.matches.ListForReport(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	return pass, dedupePairs(list), nil
}

// Accept confirms a match. Both reports become reunited and every other
// pending match on either report is rejected. Both reports must still be
// open; a failure part way leaves the match pending and the reports open.
func (s *Service) Accept(ctx context.Context, user *auth.User, matchID primitive.ObjectID) (*ReviewResponse, error) {
	m, err := s.reviewable(ctx, user, matchID)
	if err != nil {
		return nil, err
	}
	for _, id := range []primitive.ObjectID{m.LostReportID, m.FoundReportID} {
		report, err := s.reports.GetByID(ctx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return nil, fmt.Errorf("%w: report %s no longer exists", apperrors.ErrConflict, id.Hex())
			}
			return nil, err
		}
		if report.Status != reports.StatusOpen {
			return nil, fmt.Errorf("%w: report %s is %s", apperrors.ErrConflict, id.Hex(), report.Status)
		}
	}

	accepted, err := s.matches.Review(ctx, m.ID, StatusAccepted)
	if err != nil {
		return nil, err
	}

	if err := s.reunite(ctx, accepted); err != nil {
		if undoErr := s.matches.UndoAccept(context.WithoutCancel(ctx), accepted); undoErr != nil {
			logger.LogError(s.log, "matching", "Accept", "undo accept", map[string]string{"matchId": accepted.ID.Hex()}, undoErr)
		}
		return nil, err
	}

	rejected, err := s.matches.RejectOthers(ctx, accepted)
	if err != nil {
		logger.LogError(s.log, "matching", "Accept", "reject other candidates", map[string]string{"matchId": accepted.ID.Hex()}, err)
	}

	logger.Module(s.log, "matching", "Accept").
		WithField("matchId", accepted.ID.Hex()).
		WithField("autoRejected", rejected).
		Info("match accepted")

	return &ReviewResponse{Match: accepted, AutoRejected: rejected}, nil
}

// reunite moves both reports of m to reunited one at a time. If either is no
// longer open the ones already moved are put back.
func (s *Service) reunite(ctx context.Context, m *MatchCandidate) error {
	var done []primitive.ObjectID
	for _, id := range []primitive.ObjectID{m.LostReportID, m.FoundReportID} {
		n, err := s.reports.MarkReunited(ctx, id)
		if err == nil && n == 0 {
			err = fmt.Errorf("%w: report %s is no longer open", apperrors.ErrConflict, id.Hex())
		}
		if err != nil {
			if len(done) > 0 {
				if _, undoErr := s.reports.UndoReunited(context.WithoutCancel(ctx), done...); undoErr != nil {
					logger.LogError(s.log, "matching", "Accept", "undo reunite", map[string]string{"matchId": m.ID.Hex()}, undoErr)
				}
			}
			return fmt.Errorf("mark reunited: %w", err)
		}
		done = append(done, id)
	}
	return nil
}

// Reject dismisses a match
func (s *Service) Reject(ctx context.Context, user *auth.User, matchID primitive.ObjectID) (*ReviewResponse, error) {
	m, err := s.reviewable(ctx, user, matchID)
	if err != nil {
		return nil, err
	}

	rejected, err := s.matches.Review(ctx, m.ID, StatusRejected)
	if err != nil {
		return nil, err
	}
	return &ReviewResponse{Match: rejected}, nil
}

// reviewable loads a match the user may review: they own either report or
// are a moderator
func (s *Service) reviewable(ctx context.Context, user *auth.User, matchID primitive.ObjectID) (*MatchCandidate, error) {
	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if user.IsModerator() {
		return m, nil
	}

	for _, id := range []primitive.ObjectID{m.LostReportID, m.FoundReportID} {
		report, err := s.reports.GetByID(ctx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if report.IsOwner(user.ID) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: only the owners of either report can review", apperrors.ErrForbidden)
}

func newCandidate(source, candidate *reports.Report, res Result) *MatchCandidate {
	m := &MatchCandidate{
		SourceReportID:    source.ID,
		CandidateReportID: candidate.ID,
		Score:             res.Score,
		Confidence:        res.Confidence,
		Reasons:           res.Reasons,
	}
	if source.Type == reports.TypeLost {
		m.LostReportID, m.FoundReportID = source.ID, candidate.ID
	} else {
		m.LostReportID, m.FoundReportID = candidate.ID, source.ID
	}
	return m
}

func matchPayload(m *MatchCandidate, own *reports.Report) notifications.Payload {
	name := own.Name
	if name == "" {
		name = "your " + strings.ToLower(own.Species) + " report"
	}
	body := fmt.Sprintf("%.0f%% match", m.Score)
	if len(m.Reasons) > 0 {
		body += ": " + strings.Join(m.Reasons, ", ")
	}

	return notifications.Payload{
		Title:    "Possible match for " + name,
		Body:     body,
		ReportID: &own.ID,
		MatchID:  &m.ID,
		Data: map[string]string{
			"confidence": m.Confidence,
		},
	}
}

// dedupePairs keeps the first record of each lost/found pair. Both reports'
// passes can store the same pair.
func dedupePairs(list []MatchCandidate) []MatchCandidate {
	seen := make(map[[2]primitive.ObjectID]bool, len(list))
	out := make([]MatchCandidate, 0, len(list))
	for _, m := range list {
		key := [2]primitive.ObjectID{m.LostReportID, m.FoundReportID}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}
