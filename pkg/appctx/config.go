// Package appctx carries process-wide dependencies through command contexts.
package appctx

import (
	"context"

	"github.com/vulntor/fwrecon/pkg/config"
	"github.com/vulntor/fwrecon/pkg/report"
)

type key string

const (
	configKey key = "fwrecon.config.manager"
	storeKey  key = "fwrecon.report.store"
)

// WithConfig stores the shared config manager on ctx.
func WithConfig(ctx context.Context, manager *config.Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey, manager)
}

// Config retrieves the shared config manager from ctx.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	mgr, ok := ctx.Value(configKey).(*config.Manager)
	return mgr, ok && mgr != nil
}

// WithReportStore stores the workspace report store on ctx.
func WithReportStore(ctx context.Context, store *report.Store) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, storeKey, store)
}

// ReportStore retrieves the report store; absent when the workspace is disabled.
func ReportStore(ctx context.Context) (*report.Store, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(storeKey).(*report.Store)
	return s, ok && s != nil
}
