package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
)

// Store persists ray bundles as JSON files under a directory. Source records
// are columnar and hold only good rays at the slit plane; propagated records
// hold one row per ray.
type Store struct {
	dir string
}

var _ engine.RecordStore = (*Store)(nil)

// NewStore returns a store rooted at dir. Relative record names resolve
// against dir; absolute names are used as given.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

type sourceColumns struct {
	X         []float64 `json:"x"`
	Z         []float64 `json:"z"`
	Xp        []float64 `json:"xp"`
	Zp        []float64 `json:"zp"`
	Intensity []float64 `json:"intensity"`
}

type sourceRecord struct {
	Kind     string        `json:"kind"`
	EnergyEV float64       `json:"energy_ev"`
	Columns  sourceColumns `json:"columns"`
}

// propagatedRecord rows are x, y, z, xp, zp, intensity, lost flag.
type propagatedRecord struct {
	Kind     string       `json:"kind"`
	EnergyEV float64      `json:"energy_ev"`
	Rays     [][7]float64 `json:"rays"`
}

func (s *Store) path(name string) string {
	if filepath.IsAbs(name) || s.dir == "" {
		return name
	}
	return filepath.Join(s.dir, name)
}

// LoadRecord reads name in the requested shape. A file written in the other
// shape fails with engine.ErrRecordKind.
func (s *Store) LoadRecord(ctx context.Context, name string, kind engine.RecordKind) (beam.PhotonBeam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("read ray record %q: %w", name, err)
	}
	if kind == engine.SourceRecord {
		return decodeSource(name, data)
	}
	return decodePropagated(name, data)
}

func decodeSource(name string, data []byte) (*beam.RayBundle, error) {
	var rec sourceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode source record %q: %v", engine.ErrRecordKind, name, err)
	}
	if rec.Kind != engine.SourceRecord.String() {
		return nil, fmt.Errorf("%w: %q holds a %q record, not source", engine.ErrRecordKind, name, rec.Kind)
	}
	c := rec.Columns
	n := len(c.X)
	if len(c.Z) != n || len(c.Xp) != n || len(c.Zp) != n || len(c.Intensity) != n {
		return nil, fmt.Errorf("%w: source record %q has ragged columns", engine.ErrRecordKind, name)
	}
	rays := make([]beam.Ray, n)
	for i := range rays {
		rays[i] = beam.Ray{X: c.X[i], Z: c.Z[i], Xp: c.Xp[i], Zp: c.Zp[i], Intensity: c.Intensity[i]}
	}
	return beam.NewRayBundle(rays, rec.EnergyEV), nil
}

func decodePropagated(name string, data []byte) (*beam.RayBundle, error) {
	var rec propagatedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode propagated record %q: %v", engine.ErrRecordKind, name, err)
	}
	if rec.Kind != engine.PropagatedRecord.String() {
		return nil, fmt.Errorf("%w: %q holds a %q record, not propagated", engine.ErrRecordKind, name, rec.Kind)
	}
	rays := make([]beam.Ray, len(rec.Rays))
	for i, row := range rec.Rays {
		rays[i] = beam.Ray{
			X: row[0], Y: row[1], Z: row[2],
			Xp: row[3], Zp: row[4],
			Intensity: row[5],
			Lost:      row[6] != 0,
		}
	}
	return beam.NewRayBundle(rays, rec.EnergyEV), nil
}

// SaveRecord writes b in the requested shape. Bundles with lost rays or rays
// off the slit plane cannot be written as source records.
func (s *Store) SaveRecord(ctx context.Context, b beam.PhotonBeam, name string, kind engine.RecordKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rb, ok := b.(*beam.RayBundle)
	if !ok {
		return fmt.Errorf("%w: ray record needs a ray bundle, got %T", beam.ErrInvalidBeam, b)
	}
	var rec any
	if kind == engine.SourceRecord {
		src, err := encodeSource(rb)
		if err != nil {
			return err
		}
		rec = src
	} else {
		rec = encodePropagated(rb)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode ray record %q: %w", name, err)
	}
	p := s.path(name)
	if dir := filepath.Dir(p); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create record directory: %w", err)
		}
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write ray record %q: %w", name, err)
	}
	return nil
}

func encodeSource(b *beam.RayBundle) (*sourceRecord, error) {
	rec := &sourceRecord{Kind: engine.SourceRecord.String(), EnergyEV: b.EnergyEV()}
	c := &rec.Columns
	for i := 0; i < b.Len(); i++ {
		r := b.Ray(i)
		if r.Lost || r.Y != 0 {
			return nil, fmt.Errorf("%w: ray %d is not a source ray", engine.ErrRecordKind, i)
		}
		c.X = append(c.X, r.X)
		c.Z = append(c.Z, r.Z)
		c.Xp = append(c.Xp, r.Xp)
		c.Zp = append(c.Zp, r.Zp)
		c.Intensity = append(c.Intensity, r.Intensity)
	}
	return rec, nil
}

func encodePropagated(b *beam.RayBundle) *propagatedRecord {
	rec := &propagatedRecord{Kind: engine.PropagatedRecord.String(), EnergyEV: b.EnergyEV(), Rays: make([][7]float64, b.Len())}
	for i := range rec.Rays {
		r := b.Ray(i)
		var lost float64
		if r.Lost {
			lost = 1
		}
		rec.Rays[i] = [7]float64{r.X, r.Y, r.Z, r.Xp, r.Zp, r.Intensity, lost}
	}
	return rec
}
