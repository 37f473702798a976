package matching

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/features/notifications"
	"github.com/xyz-asif/rewardz/internal/features/reports"
	"github.com/xyz-asif/rewardz/internal/pkg/cache"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memReports struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]*reports.Report
	// failReunite fails MarkReunited for this report
	failReunite primitive.ObjectID
}

func newMemReports(list ...*reports.Report) *memReports {
	m := &memReports{byID: map[primitive.ObjectID]*reports.Report{}}
	for _, r := range list {
		m.byID[r.ID] = r
	}
	return m
}

func (m *memReports) GetByID(ctx context.Context, id primitive.ObjectID) (*reports.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReports) ListOpenByType(ctx context.Context, t string, since time.Time, limit int) ([]reports.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []reports.Report{}
	for _, r := range m.byID {
		if r.Type == t && r.Status == reports.StatusOpen && !r.CreatedAt.Before(since) {
			out = append(out, *r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memReports) MarkReunited(ctx context.Context, ids ...primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if !m.failReunite.IsZero() && id == m.failReunite {
			return n, errors.New("write timeout")
		}
		if r, ok := m.byID[id]; ok && r.Status == reports.StatusOpen {
			r.Status = reports.StatusReunited
			n++
		}
	}
	return n, nil
}

func (m *memReports) UndoReunited(ctx context.Context, ids ...primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := m.byID[id]; ok && r.Status == reports.StatusReunited {
			r.Status = reports.StatusOpen
			n++
		}
	}
	return n, nil
}

func (m *memReports) status(id primitive.ObjectID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

type memMatches struct {
	mu      sync.Mutex
	list    []*MatchCandidate
	alerted map[[2]primitive.ObjectID]bool
}

func (m *memMatches) Upsert(ctx context.Context, c *MatchCandidate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.list {
		if existing.SourceReportID == c.SourceReportID && existing.CandidateReportID == c.CandidateReportID {
			existing.Score, existing.Confidence, existing.Reasons = c.Score, c.Confidence, c.Reasons
			existing.UpdatedAt = time.Now()
			*c = *existing
			return false, nil
		}
	}
	c.ID = primitive.NewObjectID()
	c.Status = StatusPending
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.list = append(m.list, &cp)
	return true, nil
}

func (m *memMatches) GetByID(ctx context.Context, id primitive.ObjectID) (*MatchCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.list {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memMatches) ListForReport(ctx context.Context, reportID primitive.ObjectID) ([]MatchCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []MatchCandidate{}
	for _, c := range m.list {
		if c.Involves(reportID) {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (m *memMatches) Review(ctx context.Context, id primitive.ObjectID, status string) (*MatchCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.list {
		if c.ID != id {
			continue
		}
		if c.Status != StatusPending {
			return nil, apperrors.ErrConflict
		}
		for _, mirror := range m.list {
			if mirror.Status == StatusPending && mirror.LostReportID == c.LostReportID && mirror.FoundReportID == c.FoundReportID {
				mirror.Status = status
			}
		}
		c.Status = status
		cp := *c
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *memMatches) RejectOthers(ctx context.Context, accepted *MatchCandidate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.list {
		samePair := c.LostReportID == accepted.LostReportID && c.FoundReportID == accepted.FoundReportID
		shares := c.LostReportID == accepted.LostReportID || c.FoundReportID == accepted.FoundReportID
		if c.Status == StatusPending && shares && !samePair {
			c.Status = StatusRejected
			n++
		}
	}
	return n, nil
}

func (m *memMatches) UndoAccept(ctx context.Context, accepted *MatchCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.list {
		if c.Status == StatusAccepted && c.LostReportID == accepted.LostReportID && c.FoundReportID == accepted.FoundReportID {
			c.Status = StatusPending
		}
	}
	return nil
}

func (m *memMatches) ClaimAlert(ctx context.Context, lostID, foundID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alerted == nil {
		m.alerted = map[[2]primitive.ObjectID]bool{}
	}
	key := [2]primitive.ObjectID{lostID, foundID}
	if m.alerted[key] {
		return false, nil
	}
	m.alerted[key] = true
	return true, nil
}

func (m *memMatches) all() []MatchCandidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MatchCandidate, len(m.list))
	for i, c := range m.list {
		out[i] = *c
	}
	return out
}

type notice struct {
	userID primitive.ObjectID
	kind   string
	title  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notice
}

func (n *recordingNotifier) Notify(ctx context.Context, userID primitive.ObjectID, kind string, p notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notice{userID, kind, p.Title})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type heldLocker struct{ calls atomic.Int32 }

func (l *heldLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.calls.Add(1)
	return nil, cache.ErrLockHeld
}

func persianPair() (*reports.Report, *reports.Report) {
	lostAt := time.Now().Add(-72 * time.Hour)
	lost := report(reports.TypeLost, "Cat", "Persian", "Orange", kilimani, lostAt)
	lost.Name = "Simba"
	found := report(reports.TypeFound, "Cat", "Persian", "Orange/White", geo.Destination(kilimani, 0, 0.4), lostAt.Add(48*time.Hour))
	return lost, found
}

func newTestService(rs *memReports, ms *memMatches, n Notifier, l Locker) *Service {
	return NewService(rs, ms, NewScorer(DefaultWeights(), 70, 40), n, l, DefaultConfig(), logger.Discard())
}

func TestAutoMatch_PersistsOnePendingHighMatchAndNotifiesBoth(t *testing.T) {
	lost, found := persianPair()
	rs := newMemReports(lost, found)
	ms := &memMatches{}
	n := &recordingNotifier{}
	svc := newTestService(rs, ms, n, nil)

	pass, err := svc.AutoMatch(context.Background(), found.ID)
	require.NoError(t, err)
	require.NotEmpty(t, pass.PassID)
	require.Equal(t, 1, pass.Considered)
	require.Equal(t, 1, pass.Created)
	require.Equal(t, 2, pass.Notified)

	stored := ms.all()
	require.Len(t, stored, 1)
	m := stored[0]
	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, ConfidenceHigh, m.Confidence)
	assert.Equal(t, lost.ID, m.LostReportID)
	assert.Equal(t, found.ID, m.FoundReportID)
	assert.Equal(t, found.ID, m.SourceReportID)

	recipients := []primitive.ObjectID{n.sent[0].userID, n.sent[1].userID}
	assert.ElementsMatch(t, []primitive.ObjectID{lost.CreatorID, found.CreatorID}, recipients)
	for _, s := range n.sent {
		assert.Equal(t, notifications.KindMatch, s.kind)
	}
}

func TestAutoMatch_Idempotent(t *testing.T) {
	lost, found := persianPair()
	rs := newMemReports(lost, found)
	ms := &memMatches{}
	n := &recordingNotifier{}
	svc := newTestService(rs, ms, n, nil)

	_, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	second, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)

	require.Len(t, ms.all(), 1)
	require.Zero(t, second.Created)
	require.Len(t, second.Kept, 1)
	require.Equal(t, 2, n.count())
}

func TestAutoMatch_KeepsReviewedStatus(t *testing.T) {
	lost, found := persianPair()
	rs := newMemReports(lost, found)
	ms := &memMatches{}
	svc := newTestService(rs, ms, nil, nil)

	_, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)

	owner := &auth.User{ID: lost.CreatorID}
	_, err = svc.Reject(context.Background(), owner, ms.all()[0].ID)
	require.NoError(t, err)

	_, err = svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, ms.all()[0].Status)
}

func TestAutoMatch_SpeciesMismatchStoresNothing(t *testing.T) {
	now := time.Now()
	lost := report(reports.TypeLost, "Dog", "Persian", "Orange", kilimani, now)
	found := report(reports.TypeFound, "Cat", "Persian", "Orange", kilimani, now)
	lost.MicrochipID, found.MicrochipID = "985112003456789", "985112003456789"
	ms := &memMatches{}
	n := &recordingNotifier{}
	svc := newTestService(newMemReports(lost, found), ms, n, nil)

	pass, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	require.Equal(t, 1, pass.Considered)
	require.Empty(t, pass.Kept)
	require.Empty(t, ms.all())
	require.Zero(t, n.count())
}

func TestAutoMatch_TopNAboveMinScore(t *testing.T) {
	now := time.Now()
	lost := report(reports.TypeLost, "Dog", "Beagle", "Tan", kilimani, now)
	pool := []*reports.Report{lost}
	for _, km := range []float64{1, 5, 10, 20, 30} {
		pool = append(pool, report(reports.TypeFound, "Dog", "Beagle", "Tan", geo.Destination(kilimani, 1, km), now))
	}
	// same type and a weak cross-species candidate never make it in
	pool = append(pool, report(reports.TypeLost, "Dog", "Beagle", "Tan", kilimani, now))
	pool = append(pool, report(reports.TypeFound, "Cat", "", "", geo.Destination(kilimani, 1, 100), now.Add(-60*24*time.Hour)))

	ms := &memMatches{}
	svc := newTestService(newMemReports(pool...), ms, nil, nil)

	pass, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	require.Equal(t, 6, pass.Considered)
	require.Len(t, pass.Kept, 3)
	require.Equal(t, pool[1].ID, pass.Kept[0].CandidateReportID)
	require.Equal(t, pool[2].ID, pass.Kept[1].CandidateReportID)
	require.Equal(t, pool[3].ID, pass.Kept[2].CandidateReportID)
	for _, m := range pass.Kept {
		require.Greater(t, m.Score, 20.0)
	}
}

func TestAutoMatch_SkipsClosedReport(t *testing.T) {
	lost, found := persianPair()
	lost.Status = reports.StatusClosed
	ms := &memMatches{}
	svc := newTestService(newMemReports(lost, found), ms, nil, nil)

	pass, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	require.True(t, pass.Skipped)
	require.Empty(t, ms.all())
}

func TestAutoMatch_MissingReport(t *testing.T) {
	svc := newTestService(newMemReports(), &memMatches{}, nil, nil)
	_, err := svc.AutoMatch(context.Background(), primitive.NewObjectID())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAutoMatch_SameOwnerNotifiedOnce(t *testing.T) {
	lost, found := persianPair()
	found.CreatorID = lost.CreatorID
	n := &recordingNotifier{}
	svc := newTestService(newMemReports(lost, found), &memMatches{}, n, nil)

	pass, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	require.Equal(t, 1, pass.Notified)
	require.Equal(t, 1, n.count())
}

func TestTrigger_RunsInBackgroundEvenWhenLockHeld(t *testing.T) {
	lost, found := persianPair()
	ms := &memMatches{}
	locker := &heldLocker{}
	svc := newTestService(newMemReports(lost, found), ms, nil, locker)

	svc.Trigger(lost.ID)
	svc.Trigger(primitive.NewObjectID())
	svc.Wait()

	require.Len(t, ms.all(), 1)
	require.EqualValues(t, 2, locker.calls.Load())
}

func TestAutoMatch_BothSidesAlertPairOnce(t *testing.T) {
	lost, found := persianPair()
	ms := &memMatches{}
	n := &recordingNotifier{}
	svc := newTestService(newMemReports(lost, found), ms, n, nil)

	first, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	require.Equal(t, 2, first.Notified)

	second, err := svc.AutoMatch(context.Background(), found.ID)
	require.NoError(t, err)
	require.Equal(t, 1, second.Created, "the found side stores its own record")
	require.Zero(t, second.Notified)

	require.Len(t, ms.all(), 2)
	require.Equal(t, 2, n.count())
}

func TestTrigger_ConcurrentPassesOnBothSides(t *testing.T) {
	lost, found := persianPair()
	ms := &memMatches{}
	n := &recordingNotifier{}
	svc := newTestService(newMemReports(lost, found), ms, n, nil)

	svc.Trigger(lost.ID)
	svc.Trigger(found.ID)
	svc.Wait()

	seen := map[[2]primitive.ObjectID]int{}
	for _, m := range ms.all() {
		seen[[2]primitive.ObjectID{m.SourceReportID, m.CandidateReportID}]++
		require.Equal(t, StatusPending, m.Status)
	}
	for pair, count := range seen {
		require.Equal(t, 1, count, "pair %v stored twice", pair)
	}
	require.Len(t, seen, 2)

	require.Equal(t, 2, n.count())
	recipients := map[primitive.ObjectID]int{}
	n.mu.Lock()
	for _, s := range n.sent {
		recipients[s.userID]++
	}
	n.mu.Unlock()
	require.Equal(t, map[primitive.ObjectID]int{lost.CreatorID: 1, found.CreatorID: 1}, recipients)
}

func TestAccept_ReunitesAndRejectsOthers(t *testing.T) {
	lost, found := persianPair()
	other := report(reports.TypeFound, "Cat", "Persian", "Orange", geo.Destination(kilimani, 2, 3), found.CreatedAt)
	rs := newMemReports(lost, found, other)
	ms := &memMatches{}
	svc := newTestService(rs, ms, nil, nil)

	_, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	_, err = svc.AutoMatch(context.Background(), found.ID)
	require.NoError(t, err)
	require.Len(t, ms.all(), 3)

	var target primitive.ObjectID
	for _, m := range ms.all() {
		if m.SourceReportID == lost.ID && m.CandidateReportID == found.ID {
			target = m.ID
		}
	}
	require.False(t, target.IsZero())

	stranger := &auth.User{ID: primitive.NewObjectID()}
	_, err = svc.Accept(context.Background(), stranger, target)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	res, err := svc.Accept(context.Background(), &auth.User{ID: found.CreatorID}, target)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, res.Match.Status)
	require.EqualValues(t, 1, res.AutoRejected)

	l, _ := rs.GetByID(context.Background(), lost.ID)
	f, _ := rs.GetByID(context.Background(), found.ID)
	o, _ := rs.GetByID(context.Background(), other.ID)
	require.Equal(t, reports.StatusReunited, l.Status)
	require.Equal(t, reports.StatusReunited, f.Status)
	require.Equal(t, reports.StatusOpen, o.Status)

	for _, m := range ms.all() {
		if m.LostReportID == lost.ID && m.FoundReportID == found.ID {
			require.Equal(t, StatusAccepted, m.Status, "mirror record follows the review")
		} else {
			require.Equal(t, StatusRejected, m.Status)
		}
	}

	_, err = svc.Accept(context.Background(), &auth.User{ID: found.CreatorID}, target)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestListForReport_OwnerOnlyAndDeduped(t *testing.T) {
	lost, found := persianPair()
	ms := &memMatches{}
	svc := newTestService(newMemReports(lost, found), ms, nil, nil)

	_, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	_, err = svc.AutoMatch(context.Background(), found.ID)
	require.NoError(t, err)
	require.Len(t, ms.all(), 2)

	list, err := svc.ListForReport(context.Background(), &auth.User{ID: lost.CreatorID}, lost.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.ListForReport(context.Background(), &auth.User{ID: primitive.NewObjectID()}, lost.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	mod := &auth.User{ID: primitive.NewObjectID(), Role: auth.RoleModerator}
	_, err = svc.ListForReport(context.Background(), mod, lost.ID)
	require.NoError(t, err)
}

func TestAccept_ConflictWhenReportNotOpen(t *testing.T) {
	lost, found := persianPair()
	rs := newMemReports(lost, found)
	ms := &memMatches{}
	svc := newTestService(rs, ms, nil, nil)

	_, err := svc.AutoMatch(context.Background(), found.ID)
	require.NoError(t, err)
	target := ms.all()[0].ID

	// the lost owner closes their report before the found owner accepts
	rs.mu.Lock()
	rs.byID[lost.ID].Status = reports.StatusClosed
	rs.mu.Unlock()

	_, err = svc.Accept(context.Background(), &auth.User{ID: found.CreatorID}, target)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	require.Equal(t, StatusPending, ms.all()[0].Status)
	require.Equal(t, reports.StatusClosed, rs.status(lost.ID))
	require.Equal(t, reports.StatusOpen, rs.status(found.ID))
}

func TestAccept_ReuniteFailureLeavesMatchPending(t *testing.T) {
	lost, found := persianPair()
	rs := newMemReports(lost, found)
	rs.failReunite = found.ID
	ms := &memMatches{}
	svc := newTestService(rs, ms, nil, nil)

	_, err := svc.AutoMatch(context.Background(), lost.ID)
	require.NoError(t, err)
	_, err = svc.AutoMatch(context.Background(), found.ID)
	require.NoError(t, err)
	target := ms.all()[0].ID

	_, err = svc.Accept(context.Background(), &auth.User{ID: lost.CreatorID}, target)
	require.Error(t, err)

	for _, m := range ms.all() {
		require.Equal(t, StatusPending, m.Status)
	}
	require.Equal(t, reports.StatusOpen, rs.status(lost.ID))
	require.Equal(t, reports.StatusOpen, rs.status(found.ID))

	// once the store recovers the same match can be accepted
	rs.mu.Lock()
	rs.failReunite = primitive.ObjectID{}
	rs.mu.Unlock()
	res, err := svc.Accept(context.Background(), &auth.User{ID: lost.CreatorID}, target)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, res.Match.Status)
	require.Equal(t, reports.StatusReunited, rs.status(lost.ID))
	require.Equal(t, reports.StatusReunited, rs.status(found.ID))
}
