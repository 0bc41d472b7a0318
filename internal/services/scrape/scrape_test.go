package scrape

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentslot/internal/core/adapters"
	"dentslot/internal/platform/browserpool"
	"dentslot/internal/services/rules"
)

type fakeBackend struct {
	openErr  error
	loginOK  bool
	loginErr error
	slots    map[string][]int
	extractErr error
	panicOn  string
}

func (f *fakeBackend) Open(ctx context.Context) error { return f.openErr }
func (f *fakeBackend) Close()                          {}
func (f *fakeBackend) Login(ctx context.Context, clinic adapters.Clinic) (bool, error) {
	if f.panicOn == "login" {
		panic("boom")
	}
	return f.loginOK, f.loginErr
}
func (f *fakeBackend) AdvanceToTomorrow(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeBackend) Extract(ctx context.Context, clinic adapters.Clinic) (map[string][]int, error) {
	if f.panicOn == "extract" {
		panic("kaboom")
	}
	return f.slots, f.extractErr
}

type fakeStore struct {
	clinics []rules.ClinicConfig
}

func (s *fakeStore) EnabledClinics(ctx context.Context) ([]rules.ClinicConfig, error) {
	return s.clinics, nil
}
func (s *fakeStore) Clinic(ctx context.Context, name string) (rules.ClinicConfig, bool, error) {
	return rules.ClinicConfig{}, false, nil
}
func (s *fakeStore) Ruleset(ctx context.Context, clinicName string) (rules.StaffRuleset, bool, error) {
	return rules.StaffRuleset{}, false, nil
}
func (s *fakeStore) ExcludePatterns(ctx context.Context) []string { return nil }
func (s *fakeStore) CanonicalOrder(ctx context.Context) []string  { return nil }
func (s *fakeStore) SyncAllStaff(ctx context.Context, backendFor func(system string) adapters.Backend) error {
	return nil
}

func TestScheduler_Run_HappyPath(t *testing.T) {
	store := &fakeStore{clinics: []rules.ClinicConfig{
		{Name: "Legacy Clinic", System: "legacy", Enabled: true},
		{Name: "SPA Clinic", System: "spa", Enabled: true},
	}}

	legacyFactory := func(pool *browserpool.Pool) PageBackend {
		return &fakeBackend{loginOK: true, slots: map[string][]int{"Dr. A": {540, 545}}}
	}
	spaFactory := func(pool *browserpool.Pool) PageBackend {
		return &fakeBackend{loginOK: true, slots: map[string][]int{"チェア1": {540}}}
	}

	sched := New(nil, store, legacyFactory, spaFactory)
	results, err := sched.Run(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestScheduler_Run_ReportsProgress(t *testing.T) {
	store := &fakeStore{clinics: []rules.ClinicConfig{
		{Name: "Legacy Clinic", System: "legacy", Enabled: true},
		{Name: "SPA Clinic", System: "spa", Enabled: true},
	}}
	legacyFactory := func(pool *browserpool.Pool) PageBackend {
		return &fakeBackend{loginOK: true, slots: map[string][]int{"Dr. A": {540}}}
	}
	spaFactory := func(pool *browserpool.Pool) PageBackend {
		return &fakeBackend{loginOK: true, slots: map[string][]int{"チェア1": {540}}}
	}

	var mu sync.Mutex
	var calls []int
	sched := New(nil, store, legacyFactory, spaFactory)
	_, err := sched.Run(context.Background(), "", func(current, total int, clinic string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, total)
		calls = append(calls, current)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, calls)
}

func TestScheduler_Run_PanicDoesNotAbortRun(t *testing.T) {
	store := &fakeStore{clinics: []rules.ClinicConfig{
		{Name: "Clinic A", System: "legacy", Enabled: true},
		{Name: "Clinic B", System: "legacy", Enabled: true},
	}}

	var calls int32
	legacyFactory := func(pool *browserpool.Pool) PageBackend {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return &fakeBackend{panicOn: "extract", loginOK: true}
		}
		return &fakeBackend{loginOK: true, slots: map[string][]int{"Dr. B": {540}}}
	}

	sched := New(nil, store, legacyFactory, nil)
	results, err := sched.Run(context.Background(), "", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var sawErr, sawOK bool
	for _, r := range results {
		if r.Err != nil {
			sawErr = true
			assert.Empty(t, r.Slots)
		} else {
			sawOK = true
		}
	}
	assert.True(t, sawErr)
	assert.True(t, sawOK)
}

func TestScheduler_Run_LoginFailureRecordsError(t *testing.T) {
	store := &fakeStore{clinics: []rules.ClinicConfig{
		{Name: "Clinic A", System: "legacy", Enabled: true},
	}}
	legacyFactory := func(pool *browserpool.Pool) PageBackend {
		return &fakeBackend{loginOK: false, loginErr: errors.New("bad creds")}
	}
	sched := New(nil, store, legacyFactory, nil)
	results, err := sched.Run(context.Background(), "", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestScheduler_Run_SystemFilterSkipsOtherFamily(t *testing.T) {
	store := &fakeStore{clinics: []rules.ClinicConfig{
		{Name: "Legacy Clinic", System: "legacy", Enabled: true},
		{Name: "SPA Clinic", System: "spa", Enabled: true},
	}}
	legacyFactory := func(pool *browserpool.Pool) PageBackend {
		return &fakeBackend{loginOK: true, slots: map[string][]int{"Dr. A": {540}}}
	}
	spaFactory := func(pool *browserpool.Pool) PageBackend {
		t.Fatal("spa family should not be scraped when system filter is legacy")
		return nil
	}

	sched := New(nil, store, legacyFactory, spaFactory)
	results, err := sched.Run(context.Background(), "legacy", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Legacy Clinic", results[0].Clinic.Name)
}

func TestScheduler_Run_UnknownSystemSkipped(t *testing.T) {
	store := &fakeStore{clinics: []rules.ClinicConfig{
		{Name: "Clinic A", System: "carrier-pigeon", Enabled: true},
	}}
	sched := New(nil, store, nil, nil)
	results, err := sched.Run(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
