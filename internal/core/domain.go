package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	HabitCheck  HabitType = "check"
	HabitNumber HabitType = "number"

	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

const (
	Salary        Category = "salary"
	Freelance     Category = "freelance"
	Investment    Category = "investment"
	OtherIncome   Category = "other-income"
	Food          Category = "food"
	Transport     Category = "transport"
	Housing       Category = "housing"
	Entertainment Category = "entertainment"
	Health        Category = "health"
	Education     Category = "education"
	Shopping      Category = "shopping"
	OtherExpense  Category = "other-expense"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// MaxTextLength bounds titles and descriptions, in characters.
const MaxTextLength = 200

type (
	HabitType       string
	TransactionKind string
	Category        string

	// Date is a calendar day at UTC midnight.
	Date struct {
		time.Time
	}

	Habit struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		GoalPerWeek int       `json:"goalPerWeek"`
		Type        HabitType `json:"type"`
		CreatedAt   time.Time `json:"createdAt"`
		UserID      string    `json:"userId"`
	}

	// HabitLog is one day's outcome for a habit. Done is set for check
	// habits, Value for number habits.
	HabitLog struct {
		ID      string   `json:"id"`
		HabitID string   `json:"habitId"`
		Date    Date     `json:"date"`
		Value   *float64 `json:"value,omitempty"`
		Done    *bool    `json:"done,omitempty"`
		UserID  string   `json:"userId"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionKind `json:"type"`
		Category    Category        `json:"category"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Date        Date            `json:"date"`
		CreatedAt   time.Time       `json:"createdAt"`
		UserID      string          `json:"userId"`
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyTitle         = errors.New("empty title")
	ErrTitleTooLong       = errors.New("title too long (max 200 characters)")
	ErrInvalidGoal        = errors.New("goal per week must be positive")
	ErrInvalidHabitType   = errors.New("invalid habit type")
	ErrInvalidKind        = errors.New("invalid transaction type")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrCategoryKind       = errors.New("category does not match transaction type")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrLogShape           = errors.New("log does not match habit type")
	ErrInvalidValue       = errors.New("value must be greater than zero")
)

var categoryKinds = map[Category]TransactionKind{
	Salary:        Income,
	Freelance:     Income,
	Investment:    Income,
	OtherIncome:   Income,
	Food:          Expense,
	Transport:     Expense,
	Housing:       Expense,
	Entertainment: Expense,
	Health:        Expense,
	Education:     Expense,
	Shopping:      Expense,
	OtherExpense:  Expense,
}

// IncomeCategories and ExpenseCategories list the categories in display order.
var (
	IncomeCategories  = []Category{Salary, Freelance, Investment, OtherIncome}
	ExpenseCategories = []Category{Food, Transport, Housing, Entertainment, Health, Education, Shopping, OtherExpense}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM bucket of the day.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps too; only the day part is kept.
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (t HabitType) Valid() bool {
	return t == HabitCheck || t == HabitNumber
}

func (k TransactionKind) Valid() bool {
	return k == Income || k == Expense
}

// Kind reports the transaction kind a category belongs to.
func (c Category) Kind() (TransactionKind, bool) {
	k, ok := categoryKinds[c]
	return k, ok
}

// CategoriesFor returns the categories allowed for a transaction kind.
func CategoriesFor(k TransactionKind) []Category {
	switch k {
	case Income:
		return IncomeCategories
	case Expense:
		return ExpenseCategories
	default:
		return nil
	}
}

func (h Habit) Validate() error {
	if strings.TrimSpace(h.Title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(h.Title) > MaxTextLength {
		return ErrTitleTooLong
	}
	if h.GoalPerWeek <= 0 {
		return ErrInvalidGoal
	}
	if !h.Type.Valid() {
		return ErrInvalidHabitType
	}
	return nil
}

// ValidateFor checks the log against the habit it belongs to.
func (l HabitLog) ValidateFor(h Habit) error {
	if err := l.Date.Validate(); err != nil {
		return err
	}
	if l.HabitID != h.ID {
		return fmt.Errorf("%w: habit id mismatch", ErrLogShape)
	}
	switch h.Type {
	case HabitCheck:
		if l.Done == nil || l.Value != nil {
			return ErrLogShape
		}
	case HabitNumber:
		if l.Value == nil || l.Done != nil {
			return ErrLogShape
		}
		if *l.Value <= 0 {
			return ErrInvalidValue
		}
	default:
		return ErrInvalidHabitType
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidKind
	}
	kind, ok := t.Category.Kind()
	if !ok {
		return ErrInvalidCategory
	}
	if kind != t.Type {
		return ErrCategoryKind
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if utf8.RuneCountInString(t.Description) > MaxTextLength {
		return ErrDescriptionTooLong
	}
	return t.Date.Validate()
}

// Signed returns the amount with the sign of the transaction kind.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}
