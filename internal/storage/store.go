package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/membrane"
)

const (
	metadataFile   = "metadata.json"
	energyFile     = "energy.csv"
	trajectoryFile = "traj.jsonl"
	failedSuffix   = "_failed"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Dir returns the directory of a run.
func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      uint64             `json:"seed"`
	Scheme    string             `json:"scheme"`
	Dt        float64            `json:"dt"`
	TotalTime float64            `json:"total_time"`
	State     string             `json:"state"`
	Success   bool               `json:"success"`
	Vertices  int                `json:"vertices"`
	Faces     int                `json:"faces"`
	Time      float64            `json:"time"`
	Steps     int                `json:"steps"`
	Frames    int                `json:"frames"`
	Error     string             `json:"error,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Config    json.RawMessage    `json:"config,omitempty"`
}

// Failed reports whether the run directory carries the failure marker.
func (m RunMetadata) Failed() bool {
	return strings.HasSuffix(m.ID, failedSuffix)
}

func writeMetadata(dir string, meta RunMetadata) error {
	f, err := os.Create(filepath.Join(dir, metadataFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func readMetadata(dir string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", metadataFile, err)
	}
	return &meta, nil
}

// List returns the metadata of every run, oldest first. Directories
// without readable metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		meta.ID = entry.Name()
		runs = append(runs, *meta)
	}
	slices.SortFunc(runs, func(a, b RunMetadata) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	meta, err := readMetadata(s.Dir(runID))
	if err != nil {
		return nil, err
	}
	meta.ID = runID
	return meta, nil
}

// LoadEnergies reads the energy table of a run back into samples.
func (s *Store) LoadEnergies(runID string) ([]dynamo.Sample, error) {
	return LoadEnergies(s.Dir(runID))
}

// LoadFrame reads one trajectory frame of a run. frame −1 selects the
// last one.
func (s *Store) LoadFrame(runID string, frame int) (*Frame, error) {
	return LoadFrame(s.Dir(runID), frame)
}

func energyHeader() []string {
	h := []string{"frame", "time", "total", "kinetic", "potential"}
	h = append(h, membrane.TermNames...)
	return append(h, "mech_error", "chem_error", "area", "volume", "vertices")
}

func energyRow(frame int, s dynamo.Sample) []string {
	row := []string{strconv.Itoa(frame), formatFloat(s.Time), formatFloat(s.Total), formatFloat(s.Kinetic), formatFloat(s.Potential)}
	for _, name := range membrane.TermNames {
		row = append(row, formatFloat(s.Terms[name]))
	}
	return append(row,
		formatFloat(s.MechErrorNorm),
		formatFloat(s.ChemErrorNorm),
		formatFloat(s.Area),
		formatFloat(s.Volume),
		strconv.Itoa(s.Vertices))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// LoadEnergies parses energy.csv in dir. Columns are matched by header
// name so tables written with fewer terms still load.
func LoadEnergies(dir string) ([]dynamo.Sample, error) {
	file, err := os.Open(filepath.Join(dir, energyFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []dynamo.Sample{}, nil
		}
		return nil, err
	}

	samples := make([]dynamo.Sample, 0)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		s := dynamo.Sample{Terms: make(map[string]float64, len(membrane.TermNames))}
		for i, name := range header {
			if i >= len(record) {
				break
			}
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %s: %w", energyFile, len(samples)+1, name, err)
			}
			switch name {
			case "frame":
			case "time":
				s.Time = v
			case "total":
				s.Total = v
			case "kinetic":
				s.Kinetic = v
			case "potential":
				s.Potential = v
			case "mech_error":
				s.MechErrorNorm = v
			case "chem_error":
				s.ChemErrorNorm = v
			case "area":
				s.Area = v
			case "volume":
				s.Volume = v
			case "vertices":
				s.Vertices = int(v)
			default:
				s.Terms[name] = v
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func finiteMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}
