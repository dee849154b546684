package health

import (
	"context"
	"time"
)

// FuncChecker adapts an error-returning call, such as an upstream API
// verification, to a Checker.
type FuncChecker struct {
	fn func(ctx context.Context) error
}

// NewFuncChecker wraps fn; a nil error is healthy
func NewFuncChecker(fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{fn: fn}
}

// Check runs the call once
func (f *FuncChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := f.fn(ctx); err != nil {
		return result(start, false, err.Error())
	}
	return result(start, true, "ok")
}

// Type returns the health check type
func (f *FuncChecker) Type() CheckType {
	return CheckTypeFunc
}
