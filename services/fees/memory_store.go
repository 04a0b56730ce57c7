package fees

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store used by tests and local tooling.
// Transactions are serialised and rolled back by restoring a snapshot.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	students      map[uint]Student
	statuses      map[uint]FeeStatus
	counts        map[uint]int
	payments      []Payment
	nextStudentID uint
	nextPaymentID uint

	// InsertPaymentErr, when set, makes every InsertPayment fail with it.
	InsertPaymentErr error
	// BeforeInsertPayment, when set, runs ahead of each insert; a non-nil
	// result fails that insert only.
	BeforeInsertPayment func(p Payment) error
	// UpdatePaidFeeErr, when set, makes every UpdatePaidFee fail with it.
	UpdatePaidFeeErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students:      make(map[uint]Student),
		statuses:      make(map[uint]FeeStatus),
		counts:        make(map[uint]int),
		nextStudentID: 1,
		nextPaymentID: 1,
	}
}

// AddStudent stores s, assigning an id when s.ID is zero.
func (m *MemoryStore) AddStudent(s Student) Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextStudentID
	}
	if s.ID >= m.nextStudentID {
		m.nextStudentID = s.ID + 1
	}
	s.Installments = cloneInstallments(s.Installments)
	m.students[s.ID] = s
	m.statuses[s.ID] = DeriveStatus(s.TotalFee, s.PaidFee)
	m.counts[s.ID] = len(s.Installments)
	return s
}

// StoredStatus returns the write-through status column of a student.
func (m *MemoryStore) StoredStatus(id uint) FeeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statuses[id]
}

// StoredInstallmentCount returns the installments column of a student.
func (m *MemoryStore) StoredInstallmentCount(id uint) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[id]
}

func (m *MemoryStore) ListStudents(ctx context.Context) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Student, 0, len(m.students))
	for _, s := range m.students {
		s.Installments = cloneInstallments(s.Installments)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemoryStore) GetStudent(ctx context.Context, id uint) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return Student{}, studentNotFound(id)
	}
	s.Installments = cloneInstallments(s.Installments)
	return s, nil
}

func (m *MemoryStore) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []Payment
	for i := len(m.payments) - 1; i >= 0; i-- {
		p := m.payments[i]
		if f.StudentID != 0 && p.StudentID != f.StudentID {
			continue
		}
		if f.Method != "" && p.Method != f.Method {
			continue
		}
		if f.StartDate != "" && p.PaymentDate < f.StartDate {
			continue
		}
		if f.EndDate != "" && p.PaymentDate > f.EndDate {
			continue
		}
		matched = append(matched, p)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].PaymentDate > matched[j].PaymentDate
	})
	total := int64(len(matched))
	if f.Limit > 0 {
		start := f.Offset
		if start > len(matched) {
			start = len(matched)
		}
		end := start + f.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

type memorySnapshot struct {
	students      map[uint]Student
	statuses      map[uint]FeeStatus
	counts        map[uint]int
	payments      []Payment
	nextPaymentID uint
}

func (m *MemoryStore) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := memorySnapshot{
		students:      make(map[uint]Student, len(m.students)),
		statuses:      make(map[uint]FeeStatus, len(m.statuses)),
		counts:        make(map[uint]int, len(m.counts)),
		payments:      append([]Payment(nil), m.payments...),
		nextPaymentID: m.nextPaymentID,
	}
	for id, s := range m.students {
		s.Installments = cloneInstallments(s.Installments)
		snap.students[id] = s
	}
	for id, st := range m.statuses {
		snap.statuses[id] = st
	}
	for id, n := range m.counts {
		snap.counts[id] = n
	}
	return snap
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students = snap.students
	m.statuses = snap.statuses
	m.counts = snap.counts
	m.payments = snap.payments
	m.nextPaymentID = snap.nextPaymentID
}

func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *MemoryStore) LockStudent(ctx context.Context, id uint) (Student, error) {
	return m.GetStudent(ctx, id)
}

func (m *MemoryStore) InsertPayment(ctx context.Context, p *Payment) error {
	if m.InsertPaymentErr != nil {
		return &StoreError{Op: "insert payment", Err: m.InsertPaymentErr}
	}
	if m.BeforeInsertPayment != nil {
		if err := m.BeforeInsertPayment(*p); err != nil {
			return &StoreError{Op: "insert payment", Err: err}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[p.StudentID]; !ok {
		return studentNotFound(p.StudentID)
	}
	p.ID = m.nextPaymentID
	p.CreatedAt = time.Now()
	m.nextPaymentID++
	m.payments = append(m.payments, *p)
	return nil
}

func (m *MemoryStore) UpdatePaidFee(ctx context.Context, id uint, paid decimal.Decimal, status FeeStatus, lastPayment string) error {
	if m.UpdatePaidFeeErr != nil {
		return &StoreError{Op: "update paid fee", Err: m.UpdatePaidFeeErr}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return studentNotFound(id)
	}
	s.PaidFee = paid
	if lastPayment != "" {
		s.LastPayment = lastPayment
	}
	m.students[id] = s
	m.statuses[id] = status
	return nil
}

func (m *MemoryStore) SaveSchedule(ctx context.Context, sched Schedule, status FeeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[sched.StudentID]
	if !ok {
		return studentNotFound(sched.StudentID)
	}
	s.Installments = cloneInstallments(sched.Installments)
	s.PaidFee = sched.PaidFee
	m.students[sched.StudentID] = s
	m.statuses[sched.StudentID] = status
	m.counts[sched.StudentID] = len(sched.Installments)
	return nil
}
