// Package entity binds the relational entity types to the indexing pipeline.
package entity

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"voyagemate/apps/backend/features/source"
	"voyagemate/apps/backend/internal/pipeline"
)

var (
	ErrUnknownEntity       = errors.New("unknown entity")
	ErrDestinationRequired = errors.New("destination id required")
)

// Source is every lookup the adapters need. *source.PostgresRepo satisfies it.
type Source interface {
	DestinationSource
	AttractionSource
	CommunityEntrySource
	AuthorSource
}

type Deps struct {
	Source   Source
	Embedder pipeline.Embedder
	Store    pipeline.Store
	Logger   *slog.Logger
	Options  pipeline.Options
}

type buildOptions struct {
	destinationID int64
}

type Option func(*buildOptions)

// WithDestination scopes the attractions pipeline to one destination.
func WithDestination(id int64) Option {
	return func(o *buildOptions) { o.destinationID = id }
}

type factory func(d Deps, o buildOptions) pipeline.Runner

var registry = map[string]factory{
	Destinations: func(d Deps, _ buildOptions) pipeline.Runner {
		return pipeline.New[source.Destination](NewDestinationAdapter(d.Source), d.Embedder, d.Store, d.Logger, d.Options)
	},
	Attractions: func(d Deps, o buildOptions) pipeline.Runner {
		return pipeline.New[source.Attraction](NewAttractionAdapter(d.Source, o.destinationID), d.Embedder, d.Store, d.Logger, d.Options)
	},
	CommunityEntries: func(d Deps, _ buildOptions) pipeline.Runner {
		return pipeline.New[source.CommunityEntry](NewCommunityEntryAdapter(d.Source), d.Embedder, d.Store, d.Logger, d.Options)
	},
	Authors: func(d Deps, _ buildOptions) pipeline.Runner {
		return pipeline.New[source.Author](NewAuthorAdapter(d.Source), d.Embedder, d.Store, d.Logger, d.Options)
	},
}

// Build returns the runner for the named entity type.
func Build(name string, d Deps, opts ...Option) (pipeline.Runner, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	return f(d, o), nil
}

// Names lists the registered entity types in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Collections maps entity names to their store collection names.
func Collections() map[string]string {
	return map[string]string{
		Destinations:     destinationCollection.Name,
		Attractions:      attractionCollection.Name,
		CommunityEntries: communityEntryCollection.Name,
		Authors:          authorCollection.Name,
	}
}

func notFound(err error) error {
	if errors.Is(err, source.ErrNotFound) {
		return fmt.Errorf("%w: %w", pipeline.ErrNotFound, err)
	}
	return err
}
