package grpcdev

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/model"
)

// Message field names.
const (
	fieldAxis      = "axis"
	fieldValue     = "value"
	fieldMovement  = "movement"
	fieldPosition  = "position"
	fieldDirection = "direction"
	fieldPositions = "positions"
	fieldIntensity = "intensity"
	fieldKind      = "kind"
	fieldEnergy    = "energy_ev"
	fieldXs        = "xs"
	fieldYs        = "ys"
	fieldRays      = "rays"

	fieldImplementor = "implementor"

	kindWavefront = "wavefront"
	kindRays      = "rays"
)

// rayWidth is the number of numbers encoding one ray: x, y, z, xp, zp,
// intensity and lost (0 or 1).
const rayWidth = 7

func numberList(vs []float64) *structpb.Value {
	l := &structpb.ListValue{Values: make([]*structpb.Value, len(vs))}
	for i, v := range vs {
		l.Values[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewListValue(l)
}

func numbers(s *structpb.Struct, key string) ([]float64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidRequest, key)
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: %q is not a list", ErrInvalidRequest, key)
	}
	out := make([]float64, len(list.GetValues()))
	for i, item := range list.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: %q[%d] is not a number", ErrInvalidRequest, key, i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

func number(s *structpb.Struct, key string) (float64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidRequest, key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidRequest, key)
	}
	return n.NumberValue, nil
}

func text(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidRequest, key)
	}
	t, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a string", ErrInvalidRequest, key)
	}
	return t.StringValue, nil
}

func encodeBeam(b beam.PhotonBeam) (*structpb.Struct, error) {
	switch v := b.(type) {
	case *beam.Wavefront:
		flat := make([]float64, 0, v.Nx()*v.Ny())
		for _, row := range v.Intensity() {
			flat = append(flat, row...)
		}
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldKind:      structpb.NewStringValue(kindWavefront),
			fieldEnergy:    structpb.NewNumberValue(v.EnergyEV()),
			fieldXs:        numberList(v.XCoords()),
			fieldYs:        numberList(v.YCoords()),
			fieldIntensity: numberList(flat),
		}}, nil
	case *beam.RayBundle:
		flat := make([]float64, 0, v.Len()*rayWidth)
		for _, r := range v.Rays() {
			lost := 0.0
			if r.Lost {
				lost = 1
			}
			flat = append(flat, r.X, r.Y, r.Z, r.Xp, r.Zp, r.Intensity, lost)
		}
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldKind:   structpb.NewStringValue(kindRays),
			fieldEnergy: structpb.NewNumberValue(v.EnergyEV()),
			fieldRays:   numberList(flat),
		}}, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", beam.ErrInvalidBeam, b)
	}
}

func decodeBeam(s *structpb.Struct) (beam.PhotonBeam, error) {
	kind, err := text(s, fieldKind)
	if err != nil {
		return nil, err
	}
	energy, err := number(s, fieldEnergy)
	if err != nil {
		return nil, err
	}

	switch kind {
	case kindWavefront:
		xs, err := numbers(s, fieldXs)
		if err != nil {
			return nil, err
		}
		ys, err := numbers(s, fieldYs)
		if err != nil {
			return nil, err
		}
		flat, err := numbers(s, fieldIntensity)
		if err != nil {
			return nil, err
		}
		if len(flat) != len(xs)*len(ys) {
			return nil, fmt.Errorf("%w: %d intensities for a %dx%d grid", ErrInvalidRequest, len(flat), len(xs), len(ys))
		}
		grid := make([][]float64, len(ys))
		for j := range grid {
			grid[j] = flat[j*len(xs) : (j+1)*len(xs)]
		}
		return beam.NewWavefront(xs, ys, grid, energy)
	case kindRays:
		flat, err := numbers(s, fieldRays)
		if err != nil {
			return nil, err
		}
		if len(flat)%rayWidth != 0 {
			return nil, fmt.Errorf("%w: ray list length %d is not a multiple of %d", ErrInvalidRequest, len(flat), rayWidth)
		}
		rays := make([]beam.Ray, len(flat)/rayWidth)
		for i := range rays {
			f := flat[i*rayWidth : (i+1)*rayWidth]
			rays[i] = beam.Ray{X: f[0], Y: f[1], Z: f[2], Xp: f[3], Zp: f[4], Intensity: f[5], Lost: f[6] != 0}
		}
		return beam.NewRayBundle(rays, energy), nil
	default:
		return nil, fmt.Errorf("%w: unknown beam kind %q", ErrInvalidRequest, kind)
	}
}

func encodeScan(s beam.Scan) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldDirection: structpb.NewStringValue(s.Direction.String()),
		fieldPositions: numberList(s.Positions),
		fieldIntensity: numberList(s.Intensity),
	}}
}

func decodeScan(s *structpb.Struct) (beam.Scan, error) {
	name, err := text(s, fieldDirection)
	if err != nil {
		return beam.Scan{}, err
	}
	dir, err := model.ParseDirection(name)
	if err != nil {
		return beam.Scan{}, err
	}
	pos, err := numbers(s, fieldPositions)
	if err != nil {
		return beam.Scan{}, err
	}
	intensity, err := numbers(s, fieldIntensity)
	if err != nil {
		return beam.Scan{}, err
	}
	return beam.Scan{Direction: dir, Positions: pos, Intensity: intensity}, nil
}
