package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/membrane"
)

// RecorderOptions selects what a Run writes per frame.
type RecorderOptions struct {
	// Trajectory appends every frame to traj.jsonl.
	Trajectory bool
	// PLY writes a frame_NNNNNN.ply mesh next to the trajectory.
	PLY bool
	// Buffer is the capacity of the Samples channel. Zero disables it.
	Buffer int
}

// Run is the output directory of one simulation. It implements the
// integrators.Recorder contract.
type Run struct {
	mu   sync.Mutex
	dir  string
	meta RunMetadata
	opts RecorderOptions

	energyFile *os.File
	energy     *csv.Writer
	trajFile   *os.File
	traj       *bufio.Writer
	enc        *json.Encoder

	samples chan dynamo.Sample
	frames  int
	closed  bool
}

// Create makes a fresh run directory named after meta.Name and the
// current time and opens its energy table and trajectory.
func (s *Store) Create(meta RunMetadata, opts RecorderOptions) (*Run, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	if meta.Name == "" {
		meta.Name = "run"
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	base := fmt.Sprintf("%s_%d", meta.Name, meta.Timestamp.Unix())
	id := base
	for i := 1; ; i++ {
		err := os.Mkdir(filepath.Join(s.baseDir, id), 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
	meta.ID = id

	r := &Run{dir: filepath.Join(s.baseDir, id), meta: meta, opts: opts}
	if opts.Buffer > 0 {
		r.samples = make(chan dynamo.Sample, opts.Buffer)
	}
	if err := r.open(); err != nil {
		r.Close()
		return nil, err
	}
	if err := writeMetadata(r.dir, meta); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Run) open() error {
	var err error
	r.energyFile, err = os.Create(filepath.Join(r.dir, energyFile))
	if err != nil {
		return err
	}
	r.energy = csv.NewWriter(r.energyFile)
	if err := r.energy.Write(energyHeader()); err != nil {
		return err
	}
	r.energy.Flush()
	if err := r.energy.Error(); err != nil {
		return err
	}
	if !r.opts.Trajectory {
		return nil
	}

	r.trajFile, err = os.Create(filepath.Join(r.dir, trajectoryFile))
	if err != nil {
		return err
	}
	r.traj = bufio.NewWriter(r.trajFile)
	r.enc = json.NewEncoder(r.traj)
	return nil
}

func (r *Run) ID() string  { return r.meta.ID }
func (r *Run) Dir() string { return r.dir }
func (r *Run) Frames() int { return r.frames }

// Samples streams every saved sample. Sends never block; a slow reader
// misses frames. The channel is closed by Close.
func (r *Run) Samples() <-chan dynamo.Sample { return r.samples }

// Save appends frame to the energy table and the trajectory.
func (r *Run) Save(sys *membrane.System, frame int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("run %s is closed", r.meta.ID)
	}

	sample := sys.Sample()
	if err := r.energy.Write(energyRow(frame, sample)); err != nil {
		return err
	}
	r.energy.Flush()
	if err := r.energy.Error(); err != nil {
		return err
	}

	if r.enc != nil {
		if err := r.enc.Encode(NewFrame(sys, frame)); err != nil {
			return err
		}
		if err := r.traj.Flush(); err != nil {
			return err
		}
	}

	if r.opts.PLY {
		if err := r.writePLY(sys, frame); err != nil {
			return err
		}
	}

	r.frames++
	if r.samples != nil {
		select {
		case r.samples <- sample:
		default:
		}
	}
	return nil
}

func (r *Run) writePLY(sys *membrane.System, frame int) error {
	f, err := os.Create(filepath.Join(r.dir, fmt.Sprintf("frame_%06d.ply", frame)))
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := WritePLY(w, sys.Geometry.Mesh().Triangles(), sys.Geometry.Positions(), SystemProperties(sys)); err != nil {
		return err
	}
	return w.Flush()
}

// MarkFailed closes the run and renames its directory with a _failed
// suffix.
func (r *Run) MarkFailed() error {
	if err := r.Close(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta.Failed() {
		return nil
	}
	failed := r.dir + failedSuffix
	if err := os.Rename(r.dir, failed); err != nil {
		return err
	}
	r.dir = failed
	r.meta.ID += failedSuffix
	return nil
}

// Finish records res in the run metadata and closes the run.
func (r *Run) Finish(res dynamo.Result) error {
	closeErr := r.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta.State = res.Status.String()
	r.meta.Success = res.Success
	r.meta.Time = res.Time
	r.meta.Steps = res.Steps
	r.meta.Frames = r.frames
	r.meta.Vertices = res.Final.Vertices
	r.meta.Metrics = finiteMetrics(res.Metrics)
	if res.Err != nil {
		r.meta.Error = res.Err.Error()
	}
	if err := writeMetadata(r.dir, r.meta); err != nil {
		return err
	}
	return closeErr
}

// SetFaces records the face count of the final mesh.
func (r *Run) SetFaces(n int) {
	r.mu.Lock()
	r.meta.Faces = n
	r.mu.Unlock()
}

// Metadata returns a copy of the current run metadata.
func (r *Run) Metadata() RunMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

// Close flushes and closes the output files. It is safe to call more
// than once.
func (r *Run) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.energy != nil {
		r.energy.Flush()
		errs = append(errs, r.energy.Error())
	}
	if r.traj != nil {
		errs = append(errs, r.traj.Flush())
	}
	if r.energyFile != nil {
		errs = append(errs, r.energyFile.Close())
	}
	if r.trajFile != nil {
		errs = append(errs, r.trajFile.Close())
	}
	if r.samples != nil {
		close(r.samples)
	}
	return errors.Join(errs...)
}
