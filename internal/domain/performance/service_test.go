package performance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pms/internal/domain/auth"
)

type fakeStore struct {
	mu         sync.Mutex
	docs       map[string]PersonalPerformance
	annual     map[string]AnnualTarget
	replaceErr error
	replaced   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   map[string]PersonalPerformance{},
		annual: map[string]AnnualTarget{"fy2026": {ID: "fy2026", Name: "FY", Year: 2026, RatingScales: testScales}},
	}
}

func (f *fakeStore) GetPersonalPerformance(_ context.Context, userID, annualTargetID string) (PersonalPerformance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[userID+"|"+annualTargetID]
	if !ok {
		return PersonalPerformance{}, ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) ReplacePersonalPerformance(_ context.Context, doc PersonalPerformance) (PersonalPerformance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return PersonalPerformance{}, f.replaceErr
	}
	f.replaced++
	if doc.ID == "" {
		doc.ID = "doc-1"
	}
	f.docs[doc.UserID+"|"+doc.AnnualTargetID] = doc
	return doc, nil
}

func (f *fakeStore) GetAnnualTarget(_ context.Context, id string) (AnnualTarget, error) {
	target, ok := f.annual[id]
	if !ok {
		return AnnualTarget{}, ErrAnnualTargetNotFound
	}
	return target, nil
}

func (f *fakeStore) ListAnnualTargets(context.Context) ([]AnnualTarget, error) {
	var out []AnnualTarget
	for _, target := range f.annual {
		out = append(out, target)
	}
	return out, nil
}

func (f *fakeStore) UpsertAnnualTarget(_ context.Context, target AnnualTarget) error {
	f.annual[target.ID] = target
	return nil
}

type sentNotice struct {
	kind, recipient string
}

type fakeNotifier struct {
	fail      error
	emailFail error
	sent      []sentNotice
	emails    []string
}

func (f *fakeNotifier) Notify(_ context.Context, kind, recipientID string, _ map[string]any) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentNotice{kind: kind, recipient: recipientID})
	return nil
}

func (f *fakeNotifier) SendBackEmail(_ context.Context, recipientID, subject, _ string) error {
	if f.emailFail != nil {
		return f.emailFail
	}
	f.emails = append(f.emails, recipientID+":"+subject)
	return nil
}

type fakeLocker struct {
	held map[string]bool
}

func (f *fakeLocker) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	if f.held[key] {
		return nil, false, nil
	}
	f.held[key] = true
	return func() { delete(f.held, key) }, true, nil
}

type fakeJobs struct {
	queued []string
	runs   []func(context.Context) (any, error)
}

func (f *fakeJobs) Enqueue(jobType, key string, run func(context.Context) (any, error)) {
	f.queued = append(f.queued, jobType+":"+key)
	f.runs = append(f.runs, run)
}

// drain runs every queued job once and returns their errors in order.
func (f *fakeJobs) drain() []error {
	runs := f.runs
	f.runs = nil
	errs := make([]error, 0, len(runs))
	for _, run := range runs {
		_, err := run(context.Background())
		errs = append(errs, err)
	}
	return errs
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, _, action, _, _, _ string, _, _ any) error {
	f.actions = append(f.actions, action)
	return nil
}

type fakeMetrics struct {
	outcomes []string
}

func (f *fakeMetrics) RecordTransition(op, outcome string) {
	f.outcomes = append(f.outcomes, op+"="+outcome)
}

type harness struct {
	svc      *Service
	store    *fakeStore
	notifier *fakeNotifier
	locker   *fakeLocker
	jobs     *fakeJobs
	audit    *fakeAudit
	metrics  *fakeMetrics
}

func newHarness() harness {
	h := harness{
		store:    newFakeStore(),
		notifier: &fakeNotifier{},
		locker:   &fakeLocker{held: map[string]bool{}},
		jobs:     &fakeJobs{},
		audit:    &fakeAudit{},
		metrics:  &fakeMetrics{},
	}
	h.svc = NewService(h.store, h.notifier, h.locker)
	h.svc.Jobs = h.jobs
	h.svc.Audit = h.audit
	h.svc.Metrics = h.metrics
	h.svc.Now = func() time.Time { return testNow }
	h.svc.NewID = sequentialIDs()
	return h
}

var (
	employee   = Actor{UserID: "emp-1", RoleName: auth.RoleEmployee, RequestID: "req-1"}
	supervisor = Actor{UserID: "sup-1", RoleName: auth.RoleSupervisor}
	committee  = Actor{UserID: "com-1", RoleName: auth.RoleCommittee}
	q2Ref      = QuarterRef{UserID: "emp-1", AnnualTargetID: "fy2026", Quarter: Q2}
)

// prepare builds a Q2 agreement with weights [40,35,25] and a supervisor.
func (h harness) prepare(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.ChangeSupervisor(ctx, employee, q2Ref, "sup-1")
	require.NoError(t, err)
	_, err = h.svc.AddObjective(ctx, employee, q2Ref, ObjectiveInput{
		PerspectiveID: "p1", Name: "Revenue", Initiative: "Sales",
		KPIs: []KPIInput{{Indicator: "a", Weight: 40}, {Indicator: "b", Weight: 35}, {Indicator: "c", Weight: 25}},
	})
	require.NoError(t, err)
}

func TestServiceGetMissingDocumentIsZeroState(t *testing.T) {
	h := newHarness()
	view, err := h.svc.Get(context.Background(), employee, "emp-1", "fy2026")
	require.NoError(t, err)
	assert.False(t, view.Exists)
	assert.Len(t, view.Document.QuarterlyTargets, 4)
	for _, q := range view.Quarters {
		assert.Equal(t, StatusDraft, q.Agreement.Status)
	}

	_, err = h.svc.Get(context.Background(), employee, "emp-1", "nope")
	assert.ErrorIs(t, err, ErrAnnualTargetNotFound)

	_, err = h.svc.Get(context.Background(), Actor{UserID: "stranger", RoleName: auth.RoleEmployee}, "emp-1", "fy2026")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestServiceAgreementRoundTrip(t *testing.T) {
	h := newHarness()
	h.prepare(t)
	ctx := context.Background()

	view, err := h.svc.Submit(ctx, employee, q2Ref, PhaseAgreement)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, view.Quarters[1].Agreement.Status)
	assert.Equal(t, []sentNotice{{KindAgreementSubmit, "sup-1"}}, h.notifier.sent)

	_, err = h.svc.Approve(ctx, employee, q2Ref, PhaseAgreement)
	assert.ErrorIs(t, err, ErrForbidden, "employee cannot approve own agreement")

	view, err = h.svc.Approve(ctx, supervisor, q2Ref, PhaseAgreement)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, view.Quarters[1].Agreement.Status)
	assert.Contains(t, h.notifier.sent, sentNotice{KindAgreementApprove, "emp-1"})

	view, err = h.svc.CommitteeAccept(ctx, committee, q2Ref, PhaseAgreement)
	require.NoError(t, err)
	assert.Equal(t, ReviewStatusReviewed, view.Quarters[1].Agreement.ReviewStatus)
	assert.Contains(t, h.notifier.sent, sentNotice{KindCommitteeAccept, "emp-1"})
	assert.Contains(t, h.notifier.sent, sentNotice{KindCommitteeAccept, "sup-1"})

	before := len(h.notifier.sent)
	view, err = h.svc.CommitteeUnaccept(ctx, committee, q2Ref, PhaseAgreement)
	require.NoError(t, err)
	assert.Equal(t, ReviewStatusNotReviewed, view.Quarters[1].Agreement.ReviewStatus)
	assert.Len(t, h.notifier.sent, before, "unaccept sends nothing")

	assert.Contains(t, h.audit.actions, "agreement.submit")
	assert.Contains(t, h.metrics.outcomes, "agreement.approve=forbidden")
}

func TestServiceSendBackEmailsEmployee(t *testing.T) {
	h := newHarness()
	h.prepare(t)
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, employee, q2Ref, PhaseAgreement)
	require.NoError(t, err)

	view, err := h.svc.SendBack(ctx, supervisor, q2Ref, PhaseAgreement, FlowNotificationCenter, Message{Subject: "Fix", Body: "weights"})
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, view.Quarters[1].Agreement.Status)
	require.NotNil(t, view.Quarters[1].Agreement.SendBackMessage)
	assert.Equal(t, "sup-1", view.Quarters[1].Agreement.SendBackMessage.SentBy)
	assert.Contains(t, h.notifier.sent, sentNotice{KindSendBack, "emp-1"})
	assert.Equal(t, []string{"emp-1:Fix"}, h.notifier.emails)
}

func TestServiceNotificationFailureIsSoft(t *testing.T) {
	h := newHarness()
	h.prepare(t)
	h.notifier.fail = errors.New("smtp down")

	view, err := h.svc.Submit(context.Background(), employee, q2Ref, PhaseAgreement)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, view.Quarters[1].Agreement.Status, "transition is committed")
	assert.Equal(t, []string{"agreement.submit notification to sup-1 not delivered"}, view.Warnings)
	assert.Equal(t, []string{JobNotificationResend + ":notification:sup-1"}, h.jobs.queued)

	h.notifier.fail = nil
	assert.Equal(t, []error{nil}, h.jobs.drain())
	assert.Equal(t, []sentNotice{{KindAgreementSubmit, "sup-1"}}, h.notifier.sent, "redelivery records the notice once")
}

func TestServiceRedeliveryRepeatsOnlyTheFailedChannel(t *testing.T) {
	h := newHarness()
	h.prepare(t)
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, employee, q2Ref, PhaseAgreement)
	require.NoError(t, err)
	h.notifier.sent = nil
	h.notifier.emailFail = errors.New("smtp down")

	view, err := h.svc.SendBack(ctx, supervisor, q2Ref, PhaseAgreement, FlowNotificationCenter, Message{Subject: "Fix", Body: "weights"})
	require.NoError(t, err)
	assert.Equal(t, []string{"send-back email to emp-1 not delivered"}, view.Warnings)
	assert.Equal(t, []string{JobNotificationResend + ":email:emp-1"}, h.jobs.queued)
	assert.Equal(t, []sentNotice{{KindSendBack, "emp-1"}}, h.notifier.sent)

	require.Len(t, h.jobs.runs, 1)
	retry := h.jobs.runs[0]
	_, err = retry(ctx)
	assert.Error(t, err, "email still failing")
	assert.Len(t, h.notifier.sent, 1, "a failed email retry does not record another notification")
	assert.Empty(t, h.notifier.emails)

	h.notifier.emailFail = nil
	_, err = retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-1:Fix"}, h.notifier.emails)
	assert.Len(t, h.notifier.sent, 1)
}

func TestServicePersistFailureAppliesNothing(t *testing.T) {
	h := newHarness()
	h.prepare(t)
	h.store.replaceErr = errors.New("connection reset")

	view, err := h.svc.Submit(context.Background(), employee, q2Ref, PhaseAgreement)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusDraft, view.Quarters[1].Agreement.Status, "last known-good state is returned")
	assert.Empty(t, h.notifier.sent)

	h.store.replaceErr = nil
	stored, err := h.svc.Get(context.Background(), employee, "emp-1", "fy2026")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Quarters[1].Agreement.Status)
}

func TestServiceBusyGuard(t *testing.T) {
	h := newHarness()
	h.prepare(t)
	h.locker.held[q2Ref.key()] = true

	_, err := h.svc.Submit(context.Background(), employee, q2Ref, PhaseAgreement)
	assert.ErrorIs(t, err, ErrBusy)

	other := q2Ref
	other.Quarter = Q3
	_, err = h.svc.ChangeSupervisor(context.Background(), employee, other, "sup-1")
	assert.NoError(t, err, "other quarters are not blocked")
}

func TestServiceValidationNeverPersists(t *testing.T) {
	h := newHarness()
	_, err := h.svc.ChangeSupervisor(context.Background(), employee, q2Ref, "sup-1")
	require.NoError(t, err)
	persisted := h.store.replaced

	_, err = h.svc.Submit(context.Background(), employee, q2Ref, PhaseAgreement)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, persisted, h.store.replaced)
}

func TestServiceOutsideWindow(t *testing.T) {
	h := newHarness()
	annual := h.store.annual["fy2026"]
	annual.Periods = []QuarterPeriod{{Quarter: Q2, AgreementEnd: testNow.Add(-time.Hour)}}
	h.store.annual["fy2026"] = annual

	_, err := h.svc.AddObjective(context.Background(), employee, q2Ref, ObjectiveInput{PerspectiveID: "p", Name: "n"})
	assert.ErrorIs(t, err, ErrOutsideWindow)
}

func TestServiceCommitteeRoleRequired(t *testing.T) {
	h := newHarness()
	h.prepare(t)
	_, err := h.svc.CommitteeSendBack(context.Background(), supervisor, q2Ref, PhaseAgreement, Message{Body: "x"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestServiceImportAnnualTargets(t *testing.T) {
	h := newHarness()
	err := h.svc.ImportAnnualTargets(context.Background(), []AnnualTarget{{ID: "fy2027", Name: "FY27", Year: 2027}})
	require.NoError(t, err)
	targets, err := h.svc.ListAnnualTargets(context.Background())
	require.NoError(t, err)
	assert.Len(t, targets, 2)

	err = h.svc.ImportAnnualTargets(context.Background(), []AnnualTarget{{ID: "", Name: "bad", Year: 2027}})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
