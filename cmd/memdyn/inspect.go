package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/san-kum/memdyn/internal/export"
	"github.com/san-kum/memdyn/internal/storage"
	"github.com/san-kum/memdyn/internal/viz"
)

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadEnergies(args[0])
	if err != nil {
		return err
	}
	fmt.Println(viz.Summary(*meta, samples, width))

	frame, err := st.LoadFrame(args[0], -1)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	g, err := frame.Geometry()
	if err != nil {
		return err
	}
	fmt.Println(viz.Title(fmt.Sprintf("frame %d, t = %.6g", frame.Index, frame.Time)))
	fmt.Println(viz.RenderMesh(g.Mesh().Triangles(), g.Positions(), max(width/2, 20), max(width/5, 10), viz.View{Yaw: yaw, Pitch: pitch}))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID := args[0]
	data, err := st.Export(runID)
	if err != nil {
		return err
	}

	dir := outDir
	if dir == "" {
		dir = st.Dir(runID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	jsonPath := filepath.Join(dir, "export.json")
	if err := storage.ExportJSON(jsonPath, data); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", jsonPath)

	samples, err := st.LoadEnergies(runID)
	if err != nil {
		return err
	}
	format, ext := export.PNG, "png"
	if chartSVG {
		format, ext = export.SVG, "svg"
	}
	chartPath := filepath.Join(dir, "energy."+ext)
	if err := writeFile(chartPath, func(f *os.File) error {
		return export.EnergyChart(f, runID, samples, format)
	}); err != nil {
		return fmt.Errorf("energy chart: %w", err)
	}
	fmt.Printf("wrote %s\n", chartPath)

	frame, err := st.LoadFrame(runID, -1)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Println("no trajectory, skipping mesh svg")
			return nil
		}
		return err
	}
	g, err := frame.Geometry()
	if err != nil {
		return err
	}
	values := g.VertexMeanCurvatures()
	if len(frame.ProteinDensity) > 0 && slices.Min(frame.ProteinDensity) != slices.Max(frame.ProteinDensity) {
		values = frame.ProteinDensity
	}
	meshPath := filepath.Join(dir, fmt.Sprintf("mesh_%06d.svg", frame.Index))
	if err := writeFile(meshPath, func(f *os.File) error {
		return export.MeshSVG(f, g.Mesh().Triangles(), g.Positions(), values, viz.View{Yaw: yaw, Pitch: pitch}, 800)
	}); err != nil {
		return fmt.Errorf("mesh svg: %w", err)
	}
	fmt.Printf("wrote %s\n", meshPath)
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
