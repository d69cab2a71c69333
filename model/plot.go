package model

import (
	"fmt"
	"strings"
)

// PlotMode selects where a rendered distribution goes.
type PlotMode int

const (
	// PlotInternal renders an interactive HTML heat map.
	PlotInternal PlotMode = iota
	// PlotExternal renders a PNG image.
	PlotExternal
	// PlotBoth renders both.
	PlotBoth
)

func (m PlotMode) String() string {
	switch m {
	case PlotInternal:
		return "internal"
	case PlotExternal:
		return "external"
	case PlotBoth:
		return "both"
	default:
		return "unknown"
	}
}

func ParsePlotMode(text string) (PlotMode, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "internal":
		return PlotInternal, nil
	case "external":
		return PlotExternal, nil
	case "both":
		return PlotBoth, nil
	default:
		return 0, fmt.Errorf("%w: plot mode %q", ErrUnknownTag, text)
	}
}

// AspectRatio controls the pixel geometry of a rendered distribution.
type AspectRatio int

const (
	// AspectAuto fills the canvas regardless of the coordinate ranges.
	AspectAuto AspectRatio = iota
	// AspectTrue keeps one horizontal unit as wide as one vertical unit.
	AspectTrue
)

func ParseAspectRatio(text string) (AspectRatio, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "auto":
		return AspectAuto, nil
	case "true", "equal":
		return AspectTrue, nil
	default:
		return 0, fmt.Errorf("%w: aspect ratio %q", ErrUnknownTag, text)
	}
}

// ColorMap is the palette used to render intensities.
type ColorMap int

const (
	Rainbow ColorMap = iota
	Viridis
	Gray
)

func (c ColorMap) String() string {
	switch c {
	case Rainbow:
		return "rainbow"
	case Viridis:
		return "viridis"
	case Gray:
		return "gray"
	default:
		return "unknown"
	}
}

func ParseColorMap(text string) (ColorMap, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "rainbow":
		return Rainbow, nil
	case "viridis":
		return Viridis, nil
	case "gray", "grey":
		return Gray, nil
	default:
		return 0, fmt.Errorf("%w: color map %q", ErrUnknownTag, text)
	}
}
