package srw

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
)

// Store persists wavefronts as JSON mesh files. Wavefronts have a single
// record shape, so the requested kind is only recorded, never enforced.
type Store struct {
	dir string
}

var _ engine.RecordStore = (*Store)(nil)

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

type wavefrontRecord struct {
	Kind      string      `json:"kind"`
	EnergyEV  float64     `json:"energy_ev"`
	X         []float64   `json:"x"`
	Y         []float64   `json:"y"`
	Intensity [][]float64 `json:"intensity"`
}

func (s *Store) path(name string) string {
	if filepath.IsAbs(name) || s.dir == "" {
		return name
	}
	return filepath.Join(s.dir, name)
}

func (s *Store) LoadRecord(ctx context.Context, name string, _ engine.RecordKind) (beam.PhotonBeam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("read wavefront record %q: %w", name, err)
	}
	var rec wavefrontRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode wavefront record %q: %v", engine.ErrRecordKind, name, err)
	}
	return beam.NewWavefront(rec.X, rec.Y, rec.Intensity, rec.EnergyEV)
}

func (s *Store) SaveRecord(ctx context.Context, b beam.PhotonBeam, name string, kind engine.RecordKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w, ok := b.(*beam.Wavefront)
	if !ok {
		return fmt.Errorf("%w: wavefront record needs a wavefront, got %T", beam.ErrInvalidBeam, b)
	}
	data, err := json.Marshal(wavefrontRecord{
		Kind:      kind.String(),
		EnergyEV:  w.EnergyEV(),
		X:         w.XCoords(),
		Y:         w.YCoords(),
		Intensity: w.Intensity(),
	})
	if err != nil {
		return fmt.Errorf("encode wavefront record %q: %w", name, err)
	}
	p := s.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write wavefront record %q: %w", name, err)
	}
	return nil
}
