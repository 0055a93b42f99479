// Package preflight gates a pipeline run on the capabilities the collection scripts
// import and on the database being reachable. Both checks run once, synchronously,
// and are never retried. A failure in either halts the run before any task starts.
package preflight

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/iptvrun/internal/core"
	"github.com/3cpo-dev/iptvrun/pkg/api"
)

// Report is the outcome of one preflight pass.
type Report struct {
	Capabilities []api.CapabilityStatus
	// DatabaseChecked is false when the capability check already failed.
	DatabaseChecked bool
	Database        error
}

// Err returns the first fatal condition, or nil when the run may proceed.
func (r Report) Err() error {
	if missing := Missing(r.Capabilities); len(missing) > 0 {
		return &CapabilityError{Missing: missing}
	}
	if r.Database != nil {
		return r.Database
	}
	return nil
}

func (r Report) OK() bool { return r.Err() == nil }

// Checker runs the capability and database checks in order.
type Checker struct {
	Resolver     Resolver
	Capabilities []Capability
	// CheckDB defaults to CheckDatabase.
	CheckDB func(ctx context.Context, cfg core.DatabaseConfig) error
}

func NewChecker(r Resolver) *Checker {
	return &Checker{Resolver: r, Capabilities: DefaultCapabilities(), CheckDB: CheckDatabase}
}

// Run probes capabilities first and only contacts the database when all resolved.
func (c *Checker) Run(ctx context.Context, cfg *core.Config) Report {
	var rep Report
	rep.Capabilities = CheckCapabilities(ctx, c.Resolver, c.Capabilities)
	if missing := Missing(rep.Capabilities); len(missing) > 0 {
		log.Error().Strs("missing", missing).Msg("capability check failed")
		return rep
	}
	log.Info().Int("count", len(rep.Capabilities)).Msg("capability check passed")

	check := c.CheckDB
	if check == nil {
		check = CheckDatabase
	}
	rep.DatabaseChecked = true
	if err := check(ctx, cfg.Database()); err != nil {
		log.Error().Err(err).Msg("database check failed")
		rep.Database = err
		return rep
	}
	log.Info().Str("host", cfg.Database().Host).Str("database", cfg.Database().Database).Msg("database reachable")
	return rep
}
