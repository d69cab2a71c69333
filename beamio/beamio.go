// Package beamio routes beam load and save requests to the record store of
// the backend that owns the beam.
package beamio

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/model"
)

// ErrBeamMismatch is returned when a beam does not belong to the requested
// implementor.
var ErrBeamMismatch = errors.New("beam does not match implementor")

// options holds the per-call settings of LoadBeam and SaveBeam.
type options struct {
	kind engine.RecordKind
}

// CallOption adjusts a single load or save.
type CallOption func(*options)

// WithWhichBeam selects the record shape for ray-tracing beams. Other
// implementors ignore it.
func WithWhichBeam(kind engine.RecordKind) CallOption {
	return func(o *options) { o.kind = kind }
}

// Dispatcher holds one record store per implementor.
type Dispatcher struct {
	shadow engine.RecordStore
	srw    engine.RecordStore
	log    logging.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) { d.log = logging.OrNoop(l) }
}

// NewDispatcher builds a dispatcher over the two backend stores.
func NewDispatcher(shadow, srw engine.RecordStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{shadow: shadow, srw: srw, log: logging.Noop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) store(impl model.Implementor) (engine.RecordStore, error) {
	var s engine.RecordStore
	switch impl {
	case model.Shadow:
		s = d.shadow
	case model.SRW:
		s = d.srw
	default:
		return nil, fmt.Errorf("%w: %d", model.ErrUnknownImplementor, int(impl))
	}
	if s == nil {
		return nil, fmt.Errorf("%w: no record store for %s", model.ErrUnknownImplementor, impl)
	}
	return s, nil
}

func resolve(opts []CallOption) options {
	o := options{kind: engine.PropagatedRecord}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LoadBeam reads name with the store of impl. A ray-tracing load that asks
// for the source shape and fails for any reason is retried once as a
// propagated record; the retry's error is returned unchanged.
func (d *Dispatcher) LoadBeam(ctx context.Context, impl model.Implementor, name string, opts ...CallOption) (beam.PhotonBeam, error) {
	s, err := d.store(impl)
	if err != nil {
		return nil, err
	}
	o := resolve(opts)
	if impl != model.Shadow || o.kind != engine.SourceRecord {
		return s.LoadRecord(ctx, name, engine.PropagatedRecord)
	}

	b, err := s.LoadRecord(ctx, name, engine.SourceRecord)
	if err == nil {
		return b, nil
	}
	d.log.Warn(ctx, "source beam load failed, retrying as propagated beam",
		logging.String("name", name),
		logging.Err(err),
	)
	return s.LoadRecord(ctx, name, engine.PropagatedRecord)
}

// SaveBeam writes b with the store of impl, falling back from the source
// shape to the propagated shape the same way LoadBeam does.
func (d *Dispatcher) SaveBeam(ctx context.Context, b beam.PhotonBeam, name string, impl model.Implementor, opts ...CallOption) error {
	s, err := d.store(impl)
	if err != nil {
		return err
	}
	if b == nil || b.Implementor() != impl {
		return fmt.Errorf("%w: cannot save %T as %s", ErrBeamMismatch, b, impl)
	}
	o := resolve(opts)
	if impl != model.Shadow || o.kind != engine.SourceRecord {
		return s.SaveRecord(ctx, b, name, engine.PropagatedRecord)
	}

	err = s.SaveRecord(ctx, b, name, engine.SourceRecord)
	if err == nil {
		return nil
	}
	d.log.Warn(ctx, "source beam save failed, retrying as propagated beam",
		logging.String("name", name),
		logging.Err(err),
	)
	return s.SaveRecord(ctx, b, name, engine.PropagatedRecord)
}
