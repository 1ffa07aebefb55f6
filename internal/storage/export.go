package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	Run      RunMetadata          `json:"run"`
	Columns  []string             `json:"columns"`
	Times    []float64            `json:"times"`
	Series   map[string][]float64 `json:"series"`
	Vertices []int                `json:"vertices"`
}

// Export collects the energy table of a run into column series.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	samples, err := s.LoadEnergies(runID)
	if err != nil {
		return nil, err
	}

	data := &ExportData{
		Run:      *meta,
		Columns:  energyHeader()[1:],
		Times:    make([]float64, len(samples)),
		Series:   make(map[string][]float64),
		Vertices: make([]int, len(samples)),
	}
	for i, sm := range samples {
		data.Times[i] = sm.Time
		data.Vertices[i] = sm.Vertices
		add := func(name string, v float64) {
			if data.Series[name] == nil {
				data.Series[name] = make([]float64, len(samples))
			}
			data.Series[name][i] = v
		}
		add("total", sm.Total)
		add("kinetic", sm.Kinetic)
		add("potential", sm.Potential)
		for name, v := range sm.Terms {
			add(name, v)
		}
		add("mech_error", sm.MechErrorNorm)
		add("chem_error", sm.ChemErrorNorm)
		add("area", sm.Area)
		add("volume", sm.Volume)
	}
	return data, nil
}

func (d *ExportData) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(d)
}

func ExportJSON(path string, d *ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return d.WriteJSON(file)
}
