package hardware

import "github.com/signalsfoundry/autoalignment/engine"

// TrainFromPositions maps axis set-points onto an optical train over g.
// Pitch axes are offsets from the nominal grazing angle; missing axes read
// as zero.
func TrainFromPositions(g engine.Geometry, p map[Axis]float64) engine.Train {
	return engine.Train{
		Geometry: g,
		Slits: engine.SlitState{
			HCenter:   p[SlitsHCenter],
			VCenter:   p[SlitsVCenter],
			HAperture: p[SlitsHAperture],
			VAperture: p[SlitsVAperture],
		},
		HMirror: engine.MirrorState{
			Pitch:            g.HMirror.NominalPitch + p[HBPitch],
			Translation:      p[HBTranslation],
			BenderUpstream:   p[HBBenderUpstream],
			BenderDownstream: p[HBBenderDownstream],
			Shape:            p[HBShape],
		},
		VMirror: engine.MirrorState{
			Pitch:            g.VMirror.NominalPitch + p[VBPitch],
			Translation:      p[VBTranslation],
			BenderUpstream:   p[VBBenderUpstream],
			BenderDownstream: p[VBBenderDownstream],
			Shape:            p[VBShape],
		},
	}
}

// PositionsFromTrain is the inverse of TrainFromPositions for the actuator
// state of t.
func PositionsFromTrain(t engine.Train) map[Axis]float64 {
	g := t.Geometry
	return map[Axis]float64{
		HBPitch:            t.HMirror.Pitch - g.HMirror.NominalPitch,
		HBTranslation:      t.HMirror.Translation,
		HBBenderUpstream:   t.HMirror.BenderUpstream,
		HBBenderDownstream: t.HMirror.BenderDownstream,
		HBShape:            t.HMirror.Shape,
		VBPitch:            t.VMirror.Pitch - g.VMirror.NominalPitch,
		VBTranslation:      t.VMirror.Translation,
		VBBenderUpstream:   t.VMirror.BenderUpstream,
		VBBenderDownstream: t.VMirror.BenderDownstream,
		VBShape:            t.VMirror.Shape,
		SlitsHCenter:       t.Slits.HCenter,
		SlitsVCenter:       t.Slits.VCenter,
		SlitsHAperture:     t.Slits.HAperture,
		SlitsVAperture:     t.Slits.VAperture,
	}
}
