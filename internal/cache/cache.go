// Package cache provides a concurrency safe service that translates every
// function of an object file at most once.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/retrowasm/internal/pipeline"
	"github.com/retroenv/retrowasm/internal/symbols"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotTranslatable is returned by Lookup for every function that has
	// no module, independent of the cause.
	ErrNotTranslatable = errors.New("function is not translatable")

	// ErrUnknownFunction is returned for names that are not a function of
	// the object file or not part of the allow-list.
	ErrUnknownFunction = errors.New("unknown function")
)

// warmLimit is the number of functions translated in parallel by Warm.
const warmLimit = 4

// Translator translates single functions of a loaded object file.
type Translator interface {
	Functions() []symbols.Symbol
	Translate(ctx context.Context, name string) (*pipeline.Result, error)
}

// entry is a finished translation, failures are stored as well as they are
// deterministic.
type entry struct {
	result *pipeline.Result
	err    error
}

// Service caches translated modules by function name.
type Service struct {
	logger     *log.Logger
	translator Translator
	known      set.Set[string]

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// New returns a new cache service. If allowed names are passed, only these
// functions can be translated.
func New(logger *log.Logger, translator Translator, allowed ...string) *Service {
	allow := set.New[string]()
	for _, name := range allowed {
		allow.Add(name)
	}

	known := set.New[string]()
	for _, fn := range translator.Functions() {
		if len(allowed) > 0 && !allow.Contains(fn.Name) {
			continue
		}
		known.Add(fn.Name)
	}

	return &Service{
		logger:     logger,
		translator: translator,
		known:      known,
		entries:    map[string]entry{},
	}
}

// Known returns whether the function can be requested from the service.
func (s *Service) Known(name string) bool {
	return s.known.Contains(name)
}

// Translate returns the translation of the named function. The pipeline
// runs once per name, concurrent first requests share its result. The
// returned result is shared by all callers and must not be modified.
func (s *Service) Translate(ctx context.Context, name string) (*pipeline.Result, error) {
	if !s.Known(name) {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownFunction, name)
	}
	if e, ok := s.entry(name); ok {
		return e.result, e.err
	}

	v, err, shared := s.group.Do(name, func() (any, error) {
		if e, ok := s.entry(name); ok {
			return e.result, e.err
		}

		result, err := s.translator.Translate(ctx, name)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err // not cached, a later request can succeed
		}

		s.mu.Lock()
		s.entries[name] = entry{result: result, err: err}
		s.mu.Unlock()
		return result, err
	})
	if shared {
		s.logger.Debug("Shared translation", log.String("name", name))
	}
	if err != nil {
		return nil, err
	}
	return v.(*pipeline.Result), nil
}

// ModuleFor returns the module of the named function, translating it on the
// first request.
func (s *Service) ModuleFor(name string) ([]byte, bool) {
	module, err := s.Lookup(context.Background(), name)
	if err != nil {
		return nil, false
	}
	return module, true
}

// Lookup returns a copy of the module of the named function. All failures
// are reported as ErrNotTranslatable, the cause is only logged.
func (s *Service) Lookup(ctx context.Context, name string) ([]byte, error) {
	result, err := s.Translate(ctx, name)
	if err != nil {
		s.logger.Debug("Function not translatable",
			log.String("name", name),
			log.Err(err),
		)
		return nil, fmt.Errorf("%w: '%s'", ErrNotTranslatable, name)
	}
	return bytes.Clone(result.Module), nil
}

// GetCached returns a copy of the module of the named function if it was
// already translated successfully. It never starts a translation.
func (s *Service) GetCached(name string) ([]byte, bool) {
	e, ok := s.entry(name)
	if !ok || e.err != nil {
		return nil, false
	}
	return bytes.Clone(e.result.Module), true
}

// Warm translates the named functions upfront. Translation failures are
// cached and logged but do not fail the warm up.
func (s *Service) Warm(ctx context.Context, names []string) error {
	var group errgroup.Group
	group.SetLimit(warmLimit)

	for _, name := range names {
		if !s.Known(name) {
			s.logger.Warn("Skipping unknown function", log.String("name", name))
			continue
		}

		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := s.Translate(ctx, name); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Debug("Translating function failed",
					log.String("name", name),
					log.Err(err),
				)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("warming cache: %w", err)
	}
	return nil
}

func (s *Service) entry(name string) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}
