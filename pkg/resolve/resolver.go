// Package resolve enriches collections of Stripe objects by fetching the
// object each item references and attaching it to the item.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/stripe-helpers/pkg/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrEnrichmentFailed matches every failed Populate call.
var ErrEnrichmentFailed = errors.New("enrichment failed")

var enrichmentLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stripe_enrichment_lookups_total",
	Help: "Total point lookups issued by enrichment by resource and outcome",
}, []string{"resource", "outcome"})

// Retriever fetches a single object by id. *client.Client implements it.
type Retriever interface {
	Retrieve(ctx context.Context, name, id, account string) (resource.Item, error)
}

// Spec describes one enrichment.
type Spec struct {
	// ForeignKey is the field on each item holding the referenced id,
	// e.g. "originating_transaction".
	ForeignKey string

	// TargetResource is the resource the id belongs to, e.g. "charges".
	TargetResource string

	// As is the field the fetched object is stored under.
	// Defaults to TargetResource.
	As string

	// Account is the connected account the lookups run as ("" for the platform).
	Account string
}

func (s Spec) alias() string {
	if s.As != "" {
		return s.As
	}
	return s.TargetResource
}

// Error reports the item whose lookup failed.
type Error struct {
	// Index of the item in the input collection.
	Index int

	// ID is the referenced id, empty when the foreign key could not be read.
	ID string

	Resource string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("enrichment failed at item %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("enrichment failed at item %d (%s %s): %v", e.Index, e.Resource, e.ID, e.Err)
}

// Unwrap returns the underlying lookup error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrEnrichmentFailed.
func (e *Error) Is(target error) bool {
	return target == ErrEnrichmentFailed
}

// Config holds resolver configuration.
type Config struct {
	// MaxConcurrency bounds in-flight lookups. 0 issues every lookup at once.
	MaxConcurrency int
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{}
}

// Resolver performs enrichments. It is safe for concurrent use.
type Resolver struct {
	retriever Retriever
	config    Config
	logger    zerolog.Logger
}

// NewResolver creates a new resolver.
func NewResolver(retriever Retriever, config Config) *Resolver {
	if config.MaxConcurrency < 0 {
		config.MaxConcurrency = 0
	}
	return &Resolver{
		retriever: retriever,
		config:    config,
		logger:    log.With().Str("component", "resolve").Logger(),
	}
}

// Populate fetches, for every item, the object referenced by spec.ForeignKey
// and returns copies of the items with that object stored under the alias
// field. Order and length are preserved and the input items are not modified.
//
// Lookups run concurrently. If any lookup fails the outstanding ones are
// cancelled and Populate returns an *Error and no items.
func (r *Resolver) Populate(ctx context.Context, items []resource.Item, spec Spec) ([]resource.Item, error) {
	if spec.ForeignKey == "" {
		return nil, fmt.Errorf("%w: foreign key is required", ErrEnrichmentFailed)
	}
	if spec.TargetResource == "" {
		return nil, fmt.Errorf("%w: target resource is required", ErrEnrichmentFailed)
	}
	if _, err := resource.Lookup(spec.TargetResource); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}

	ids := make([]string, len(items))
	for i, item := range items {
		id, err := item.ReferenceID(spec.ForeignKey)
		if err != nil {
			return nil, &Error{Index: i, Resource: spec.TargetResource, Err: err}
		}
		ids[i] = id
	}

	start := time.Now()
	label := resource.Normalize(spec.TargetResource)
	related := make([]resource.Item, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if r.config.MaxConcurrency > 0 {
		g.SetLimit(r.config.MaxConcurrency)
	}

	for i, id := range ids {
		g.Go(func() error {
			obj, err := r.retriever.Retrieve(gctx, spec.TargetResource, id, spec.Account)
			if err != nil {
				enrichmentLookupsTotal.WithLabelValues(label, "error").Inc()
				return &Error{Index: i, ID: id, Resource: spec.TargetResource, Err: err}
			}
			enrichmentLookupsTotal.WithLabelValues(label, "ok").Inc()
			related[i] = obj
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Warn().
			Err(err).
			Str("resource", spec.TargetResource).
			Int("items", len(items)).
			Msg("Enrichment failed")
		return nil, err
	}

	alias := spec.alias()
	out := make([]resource.Item, len(items))
	for i, item := range items {
		enriched := item.Clone()
		enriched[alias] = related[i]
		out[i] = enriched
	}

	r.logger.Debug().
		Str("resource", spec.TargetResource).
		Str("as", alias).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Enrichment complete")

	return out, nil
}
