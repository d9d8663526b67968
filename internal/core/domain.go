package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "Income"
	Expense Kind = "Expense"
)

// DateLayout is the minute-resolution timestamp stored with every transaction.
const DateLayout = "2006-01-02 15:04"

// DayLayout is the calendar-date key used by the daily trend.
const DayLayout = "2006-01-02"

type (
	Kind string

	User struct {
		ID             int64
		Username       string
		CredentialHash string
	}

	Transaction struct {
		ID          int64
		UserID      int64
		Date        string // DateLayout
		Category    string
		Description string
		Kind        Kind
		Amount      decimal.Decimal
	}

	// EntryRow is one line of the transaction entry table before it is stored.
	EntryRow struct {
		Category    string
		Description string
		Kind        Kind
		Amount      decimal.Decimal
	}
)

// Categories offered by the entry table. The store accepts any text.
var Categories = []string{"Food", "Travel", "Rent", "Shopping", "Salary", "Other"}

// Kinds offered by the entry table, in display order.
var Kinds = []Kind{Expense, Income}

var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrEmptyUsername      = errors.New("empty username")
	ErrEmptyPassword      = errors.New("empty password")
	ErrPasswordTooLong    = errors.New("password too long (max 72 bytes)")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")

	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid type")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
)

// ParseKind accepts the two kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense":
		return Expense, nil
	}
	return "", ErrInvalidKind
}

func (k Kind) Validate() error {
	if k != Income && k != Expense {
		return ErrInvalidKind
	}
	return nil
}

func (k Kind) String() string {
	return string(k)
}

func (r EntryRow) Validate() error {
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Timestamp formats t at minute resolution, the way batches are stamped.
func Timestamp(t time.Time) string {
	return t.Format(DateLayout)
}

// Day returns the calendar date part of the transaction timestamp.
func (t Transaction) Day() (time.Time, error) {
	if ts, err := time.Parse(DateLayout, t.Date); err == nil {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(DayLayout, t.Date)
}
