package clearance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/st20medic/trucks/internal/domain"
	"github.com/st20medic/trucks/internal/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	snapshot   domain.VehicleSnapshot
	clearances map[domain.AlertKind]time.Time
	getErr     error
	recordErr  error
	appendErrs []error // consumed one per AppendClearanceLog call; nil = success
	appended   []domain.AccountabilityRecord
	restores   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshot: domain.VehicleSnapshot{
			ID:        "unit-201",
			UnitLabel: "Medic 201",
			Odometer:  106000,
			DocumentExpiry: map[domain.AlertKind]time.Time{
				domain.KindRegistration: testNow.AddDate(0, 2, 0),
			},
		},
		clearances: map[domain.AlertKind]time.Time{},
	}
}

func (f *fakeStore) GetVehicleState(ctx context.Context, vehicleID string) (store.VehicleState, error) {
	if f.getErr != nil {
		return store.VehicleState{}, f.getErr
	}
	cleared := domain.ClearanceState{}
	for k, v := range f.clearances {
		cleared[k] = v
	}
	return store.VehicleState{Snapshot: f.snapshot, Clearances: cleared}, nil
}

func (f *fakeStore) RecordClearance(ctx context.Context, vehicleID string, kind domain.AlertKind, at time.Time) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.clearances[kind] = at
	return nil
}

func (f *fakeStore) RestoreClearance(ctx context.Context, vehicleID string, kind domain.AlertKind, prev *time.Time) error {
	f.restores++
	if prev == nil {
		delete(f.clearances, kind)
	} else {
		f.clearances[kind] = *prev
	}
	return nil
}

func (f *fakeStore) AppendClearanceLog(ctx context.Context, rec domain.AccountabilityRecord) error {
	var err error
	if len(f.appendErrs) > 0 {
		err = f.appendErrs[0]
		f.appendErrs = f.appendErrs[1:]
	}
	if err != nil {
		return err
	}
	f.appended = append(f.appended, rec)
	return nil
}

func newTestWorkflow(st Store) *Workflow {
	w := NewWorkflow(st, zap.NewNop())
	w.now = func() time.Time { return testNow }
	w.backoff = time.Millisecond
	return w
}

func TestClearSuccess(t *testing.T) {
	st := newFakeStore()
	w := newTestWorkflow(st)

	rec, err := w.Clear(context.Background(), "unit-201", domain.KindOilChange, "oil changed in-house this morning", "shop_desk")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, testNow, rec.ClearedAt)
	assert.Equal(t, int64(106000), rec.ClearedOdometer)
	assert.Nil(t, rec.ClearedExpiry)
	assert.Equal(t, "shop_desk", rec.Author)

	assert.Equal(t, testNow, st.clearances[domain.KindOilChange])
	require.Len(t, st.appended, 1)
	assert.Equal(t, rec.ID, st.appended[0].ID)
}

func TestClearDocumentKindCapturesExpiry(t *testing.T) {
	st := newFakeStore()
	w := newTestWorkflow(st)

	rec, err := w.Clear(context.Background(), "unit-201", domain.KindRegistration, "renewal mailed, plates in glovebox", "duty_officer")
	require.NoError(t, err)
	require.NotNil(t, rec.ClearedExpiry)
	assert.Equal(t, testNow.AddDate(0, 2, 0), *rec.ClearedExpiry)
}

func TestClearRejectsEmptyJustification(t *testing.T) {
	st := newFakeStore()
	w := newTestWorkflow(st)

	for _, justification := range []string{"", "   ", "\t\n"} {
		_, err := w.Clear(context.Background(), "unit-201", domain.KindOilChange, justification, "shop_desk")
		assert.ErrorIs(t, err, ErrEmptyJustification)
	}
	assert.Empty(t, st.clearances)
	assert.Empty(t, st.appended)
}

func TestClearRejectsUnknownKind(t *testing.T) {
	w := newTestWorkflow(newFakeStore())
	_, err := w.Clear(context.Background(), "unit-201", domain.AlertKind("WIPERS"), "because", "shop_desk")
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestClearRetriesAccountabilityWrite(t *testing.T) {
	st := newFakeStore()
	st.appendErrs = []error{errors.New("timeout"), errors.New("timeout"), nil}
	w := newTestWorkflow(st)

	_, err := w.Clear(context.Background(), "unit-201", domain.KindOilChange, "oil changed", "shop_desk")
	require.NoError(t, err)
	assert.Len(t, st.appended, 1)
	assert.Zero(t, st.restores)
}

func TestClearRollsBackWhenAccountabilityFails(t *testing.T) {
	st := newFakeStore()
	boom := errors.New("log store down")
	st.appendErrs = []error{boom, boom, boom}
	w := newTestWorkflow(st)

	_, err := w.Clear(context.Background(), "unit-201", domain.KindOilChange, "oil changed", "shop_desk")
	require.ErrorIs(t, err, ErrUnaccountable)

	// The clearance must not survive: a later Clear behaves as if this one
	// never happened.
	assert.Equal(t, 1, st.restores)
	assert.NotContains(t, st.clearances, domain.KindOilChange)
	assert.Empty(t, st.appended)

	rec, err := w.Clear(context.Background(), "unit-201", domain.KindOilChange, "oil changed, retrying", "shop_desk")
	require.NoError(t, err)
	assert.Equal(t, testNow, st.clearances[domain.KindOilChange])
	require.Len(t, st.appended, 1)
	assert.Equal(t, rec.ID, st.appended[0].ID)
}

func TestClearRollbackRestoresPreviousClearance(t *testing.T) {
	st := newFakeStore()
	prev := testNow.AddDate(0, 0, -3)
	st.clearances[domain.KindOilChange] = prev
	boom := errors.New("log store down")
	st.appendErrs = []error{boom, boom, boom}
	w := newTestWorkflow(st)

	_, err := w.Clear(context.Background(), "unit-201", domain.KindOilChange, "re-clearing", "shop_desk")
	require.ErrorIs(t, err, ErrUnaccountable)
	assert.Equal(t, prev, st.clearances[domain.KindOilChange])
}

func TestReclearInsideWindowResetsAndAppends(t *testing.T) {
	st := newFakeStore()
	st.clearances[domain.KindOilChange] = testNow.AddDate(0, 0, -3)
	w := newTestWorkflow(st)

	_, err := w.Clear(context.Background(), "unit-201", domain.KindOilChange, "still waiting on parts", "shop_desk")
	require.NoError(t, err)
	assert.Equal(t, testNow, st.clearances[domain.KindOilChange])
	assert.Len(t, st.appended, 1)
}
