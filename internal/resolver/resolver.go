// Package resolver turns an optional requested version into a concrete one.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/registry"
	"github.com/swiftos/birdy/internal/version"
)

// VersionLister lists every version the registry publishes for a package.
type VersionLister interface {
	Versions(ctx context.Context, name string) ([]string, error)
}

// Resolver picks the version to act on.
type Resolver struct {
	registry VersionLister
	order    version.Order
}

// New returns a Resolver that queries lister and compares versions under order.
func New(lister VersionLister, order version.Order) *Resolver {
	if order == "" {
		order = version.OrderLexical
	}
	return &Resolver{registry: lister, order: order}
}

// Resolve returns requested unchanged when it is non-empty; the registry is not contacted.
// Otherwise it returns the greatest published version.
func (r *Resolver) Resolve(ctx context.Context, name string, requested string) (string, error) {
	if strings.TrimSpace(requested) != "" {
		return requested, nil
	}
	logger := zerolog.Ctx(ctx)
	if r.registry == nil {
		return "", errs.New(errs.ErrResolution, messages.ResolverRegistryRequired)
	}

	versions, err := r.registry.Versions(ctx, name)
	if err != nil {
		if registry.IsNotFound(err) {
			return "", fmt.Errorf("%w: %w", errs.ErrResolution, errs.Wrap(errs.ErrNoVersions, name, err))
		}
		return "", fmt.Errorf("%w: %w", errs.ErrResolution, errs.Wrap(errs.ErrRegistryUnreachable, name, err))
	}

	latest, ok := version.Max(r.order, versions)
	if !ok {
		return "", fmt.Errorf("%w: %w", errs.ErrResolution, errs.New(errs.ErrNoVersions, name))
	}
	logger.Debug().
		Str("package", name).
		Int("candidates", len(versions)).
		Str("order", string(r.order)).
		Str("version", latest).
		Msg("resolved latest version")
	return latest, nil
}
