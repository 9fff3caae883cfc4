//go:build !windows

package service

import "context"

// Run executes fn.
func Run(ctx context.Context, name string, fn Workload) error {
	return fn(ctx)
}
