package focusing

import (
	"fmt"

	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/model"
)

// InputFeatures is the state a System is initialized to. Mirror pitches are
// offsets from the nominal grazing angle of Geometry; all other values are
// absolute, in metres or shape units.
type InputFeatures struct {
	Geometry engine.Geometry
	Slits    engine.SlitState
	HMirror  engine.MirrorState
	VMirror  engine.MirrorState
}

// DefaultInputFeatures returns the documented starting state for layout.
// Both layouts start with the mirrors at their nominal pitch and unbent.
// AutoAlignment opens the slits to 0.2 mm by 1 mm; AutoFocusing closes them
// to 50 µm by 100 µm for a more coherent illumination.
func DefaultInputFeatures(layout model.Layout) (InputFeatures, error) {
	f := InputFeatures{Geometry: engine.DefaultGeometry()}
	switch layout {
	case model.AutoAlignment:
		f.Slits = engine.SlitState{HAperture: 0.2e-3, VAperture: 1e-3}
	case model.AutoFocusing:
		f.Slits = engine.SlitState{HAperture: 50e-6, VAperture: 100e-6}
	default:
		return InputFeatures{}, checkLayout(layout)
	}
	return f, nil
}

func checkLayout(layout model.Layout) error {
	switch layout {
	case model.AutoAlignment, model.AutoFocusing:
		return nil
	default:
		return fmt.Errorf("%w: unknown layout %d", ErrConfiguration, int(layout))
	}
}

// train maps the features onto an optical train.
func (f InputFeatures) train() engine.Train {
	t := engine.Train{Geometry: f.Geometry, Slits: f.Slits, HMirror: f.HMirror, VMirror: f.VMirror}
	t.HMirror.Pitch += f.Geometry.HMirror.NominalPitch
	t.VMirror.Pitch += f.Geometry.VMirror.NominalPitch
	return t
}

// positions maps the features onto named axes.
func (f InputFeatures) positions() map[hardware.Axis]float64 {
	return hardware.PositionsFromTrain(f.train())
}
