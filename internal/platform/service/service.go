// Package service lets slothunterd run under the Windows service manager.
// Elsewhere Run simply calls the workload.
package service

import "context"

// Workload is the daemon body. It must return once ctx is cancelled.
type Workload func(ctx context.Context) error
