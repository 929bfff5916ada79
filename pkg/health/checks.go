package health

import (
	"context"
	"fmt"
	"runtime"
)

// GoroutineCountCheck fails when the goroutine count exceeds the threshold,
// catching leaks before they take the process down.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return fmt.Errorf("too many goroutines: %d > %d", count, threshold)
		}
		return nil
	}
}
