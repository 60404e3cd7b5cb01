// Package oracle defines the satisfiability oracle: the single place where conditions meet the
// search backend.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/spigell/talent-screener/internal/condition"
)

var (
	// ErrInvalidField matches every InvalidFieldError.
	ErrInvalidField = errors.New("invalid field")
	// ErrUnavailable matches every UnavailableError.
	ErrUnavailable = errors.New("oracle unavailable")
)

// Oracle counts the documents of an index matching a compiled query.
type Oracle interface {
	Count(ctx context.Context, index string, query condition.Fragment) (int64, error)
}

// Identity locates one candidate document.
type Identity struct {
	Index string
	ID    string
}

func (i Identity) String() string {
	return i.Index + "/" + i.ID
}

// IdentityCondition matches exactly the document with the given id.
func IdentityCondition(id string) condition.Condition {
	return condition.NewKeyword(condition.FieldID, id)
}

// Satisfies reports whether the candidate matches all conds.
func Satisfies(ctx context.Context, o Oracle, who Identity, conds ...condition.Condition) (bool, error) {
	all := make([]condition.Condition, 0, len(conds)+1)
	all = append(all, conds...)
	all = append(all, IdentityCondition(who.ID))

	n, err := o.Count(ctx, who.Index, condition.And(all...).Compile())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InvalidFieldError is returned when a query references fields the backend does not know.
type InvalidFieldError struct {
	Fields []string
	Cause  error
}

func (e *InvalidFieldError) Error() string {
	msg := ErrInvalidField.Error()
	if len(e.Fields) > 0 {
		msg += ": " + strings.Join(e.Fields, ", ")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *InvalidFieldError) Is(target error) bool { return target == ErrInvalidField }

func (e *InvalidFieldError) Unwrap() error { return e.Cause }

// UnavailableError is returned when the backend could not answer.
type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string {
	if e.Cause == nil {
		return ErrUnavailable.Error()
	}
	return fmt.Sprintf("%s: %s", ErrUnavailable, e.Cause)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Cause }

// Counting wraps an oracle and counts the queries it forwards.
type Counting struct {
	Oracle
	calls atomic.Int64
}

func NewCounting(o Oracle) *Counting {
	return &Counting{Oracle: o}
}

func (c *Counting) Count(ctx context.Context, index string, query condition.Fragment) (int64, error) {
	c.calls.Add(1)
	return c.Oracle.Count(ctx, index, query)
}

// Calls returns the number of queries issued so far.
func (c *Counting) Calls() int64 {
	return c.calls.Load()
}
