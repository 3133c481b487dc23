package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type memDoctor struct {
	name  string
	slots []string
}

type memPatient struct {
	name, email, phone string
}

// memStore is an in-memory Store. Transactions are serialised and roll back
// on error; Create and Update enforce the doctor/time uniqueness the way the
// database index does.
type memStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	doctors  map[int64]memDoctor
	patients map[int64]memPatient
	appts    map[int64]Appointment
	nextID   int64

	// failOn makes the named method return failErr.
	failOn  string
	failErr error
}

func newMemStore() *memStore {
	return &memStore{
		doctors:  map[int64]memDoctor{},
		patients: map[int64]memPatient{},
		appts:    map[int64]Appointment{},
	}
}

func (m *memStore) addDoctor(id int64, name string, slots ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[id] = memDoctor{name: name, slots: slots}
}

func (m *memStore) addPatient(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[id] = memPatient{name: name, email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"}
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appts)
}

func (m *memStore) get(id int64) (Appointment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	return a, ok
}

func (m *memStore) fail(method string) error {
	if m.failOn == method {
		return m.failErr
	}
	return nil
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: DoctorTimeConstraint}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := make(map[int64]Appointment, len(m.appts))
	for k, v := range m.appts {
		snapshot[k] = v
	}
	m.mu.Unlock()

	err := fn(ctx)
	if err == nil {
		err = m.fail("Commit")
	}
	if err != nil {
		m.mu.Lock()
		m.appts = snapshot
		m.mu.Unlock()
	}
	return err
}

func (m *memStore) PatientExists(_ context.Context, id int64) (bool, error) {
	if err := m.fail("PatientExists"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.patients[id]
	return ok, nil
}

func (m *memStore) DoctorSlots(_ context.Context, id int64) ([]string, error) {
	if err := m.fail("DoctorSlots"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return append([]string(nil), d.slots...), nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*Appointment, error) {
	if err := m.fail("GetByID"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memStore) ExistsConflict(ctx context.Context, doctorID int64, at time.Time) (bool, error) {
	return m.ExistsConflictExcluding(ctx, doctorID, at, 0)
}

func (m *memStore) ExistsConflictExcluding(_ context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error) {
	if err := m.fail("ExistsConflict"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conflictLocked(doctorID, at, excludeID), nil
}

func (m *memStore) conflictLocked(doctorID int64, at time.Time, excludeID int64) bool {
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Time.Equal(at) && a.ID != excludeID {
			return true
		}
	}
	return false
}

func (m *memStore) ByDoctorAndWindow(_ context.Context, doctorID int64, start, end time.Time) ([]*Appointment, error) {
	if err := m.fail("ByDoctorAndWindow"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && !a.Time.Before(start) && a.Time.Before(end) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) detailLocked(a Appointment) *Detail {
	p := m.patients[a.PatientID]
	return &Detail{
		Appointment:  a,
		PatientName:  p.name,
		PatientEmail: p.email,
		PatientPhone: p.phone,
		DoctorName:   m.doctors[a.DoctorID].name,
	}
}

func (m *memStore) ListForDoctor(_ context.Context, doctorID int64, start, end time.Time, patientName string) ([]*Detail, error) {
	if err := m.fail("ListForDoctor"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Detail{}
	for _, a := range m.appts {
		if a.DoctorID != doctorID || a.Time.Before(start) || !a.Time.Before(end) {
			continue
		}
		d := m.detailLocked(a)
		if patientName != "" && !strings.Contains(strings.ToLower(d.PatientName), strings.ToLower(patientName)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) ListForPatient(_ context.Context, patientID int64, f PatientFilter) ([]*Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Detail{}
	for _, a := range m.appts {
		if a.PatientID != patientID {
			continue
		}
		if f.Condition == ConditionPast && !a.Time.Before(f.Now) {
			continue
		}
		if f.Condition == ConditionFuture && a.Time.Before(f.Now) {
			continue
		}
		d := m.detailLocked(a)
		if f.DoctorName != "" && !strings.Contains(strings.ToLower(d.DoctorName), strings.ToLower(f.DoctorName)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *memStore) Create(_ context.Context, a *Appointment) error {
	if err := m.fail("Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictLocked(a.DoctorID, a.Time, 0) {
		return uniqueViolation()
	}
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = *a
	return nil
}

func (m *memStore) Update(_ context.Context, a *Appointment) error {
	if err := m.fail("Update"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.appts[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if m.conflictLocked(existing.DoctorID, a.Time, a.ID) {
		return uniqueViolation()
	}
	existing.Time = a.Time
	existing.Status = a.Status
	existing.Reason = a.Reason
	existing.UpdatedAt = time.Now()
	m.appts[a.ID] = existing
	a.UpdatedAt = existing.UpdatedAt
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Status = status
	m.appts[id] = a
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	if err := m.fail("Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.appts, id)
	return nil
}

func (m *memStore) DeleteAllByDoctor(_ context.Context, doctorID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.appts {
		if a.DoctorID == doctorID {
			delete(m.appts, id)
			n++
		}
	}
	return n, nil
}
