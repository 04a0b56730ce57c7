package fees

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the backing store of the ledger. Methods called on the Store
// handed to a Transaction callback run inside that transaction: either every
// write made there is committed or none is.
type Store interface {
	ListStudents(ctx context.Context) ([]Student, error)
	GetStudent(ctx context.Context, id uint) (Student, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, int64, error)

	Transaction(ctx context.Context, fn func(tx Store) error) error

	// LockStudent reads a student and holds it against concurrent writers
	// until the surrounding transaction ends.
	LockStudent(ctx context.Context, id uint) (Student, error)
	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePaidFee(ctx context.Context, id uint, paid decimal.Decimal, status FeeStatus, lastPayment string) error
	SaveSchedule(ctx context.Context, sched Schedule, status FeeStatus) error
}
