package circuitbreaker

import "context"

// CallWithResultTyped is a type-safe generic wrapper around Breaker.Call.
//
// Usage:
//
//	val, err := circuitbreaker.CallWithResultTyped(cb, ctx, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
func CallWithResultTyped[T any](cb *Breaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Call(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
