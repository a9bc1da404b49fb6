package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zlnvch/garden/canvas"
)

// stroke is one pointer-down..pointer-up gesture in client coordinates.
type stroke struct {
	Color  string       `json:"color"`
	Points [][2]float64 `json:"points"`
}

func loadStrokes(path string) ([]stroke, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var strokes []stroke
	if err := json.Unmarshal(data, &strokes); err != nil {
		return nil, fmt.Errorf("failed to parse strokes: %w", err)
	}
	return strokes, nil
}

// replay draws strokes onto surface the way pointer events would.
func replay(surface *canvas.Surface, strokes []stroke) error {
	for i, st := range strokes {
		if st.Color != "" {
			c, err := canvas.ParseHexColor(st.Color)
			if err != nil {
				return fmt.Errorf("stroke %d: %w", i, err)
			}
			surface.SetColor(c)
		}
		if len(st.Points) == 0 {
			continue
		}

		surface.Begin(canvas.Point{X: st.Points[0][0], Y: st.Points[0][1]})
		for _, p := range st.Points[1:] {
			surface.Extend(canvas.Point{X: p[0], Y: p[1]})
		}
		surface.End()
	}
	return nil
}
