// Package fakedevice simulates a connected e-reader: a virtual mounted
// volume, an in-memory file store, and a reading database populated with
// deterministic sample data. It backs tests and demo runs where plugging
// in real hardware is not an option.
package fakedevice

import (
	"context"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/stomybooks/stomy-sync/pkg/devices"
)

// Options tune the simulation.
type Options struct {
	MountPath      string        // defaults to /Volumes/KOBOeReader
	FailureRate    float64       // 0-1 chance any I/O call fails
	SimulateDelays bool          // sleep on I/O calls
	OpDelay        time.Duration // per-call delay when SimulateDelays is set
	Seed           int64         // randomness seed; same seed, same behavior
}

// Simulator is a fake Kobo-style device. It implements
// devices.VolumeService, transfer.FileService, and devicedb.Reader.
type Simulator struct {
	opts Options

	mu    sync.Mutex
	rng   *rand.Rand
	files map[string][]byte
	dirs  map[string]bool

	library SampleLibrary
}

func New(opts Options) *Simulator {
	if opts.MountPath == "" {
		opts.MountPath = "/Volumes/KOBOeReader"
	}
	if opts.OpDelay == 0 {
		opts.OpDelay = 20 * time.Millisecond
	}

	s := &Simulator{
		opts:    opts,
		rng:     rand.New(rand.NewSource(opts.Seed)),
		files:   map[string][]byte{},
		dirs:    map[string]bool{},
		library: NewSampleLibrary(),
	}

	// Lay down the marker the detector probes for.
	s.dirs[opts.MountPath] = true
	s.dirs[path.Join(opts.MountPath, ".kobo")] = true
	s.files[path.Join(opts.MountPath, ".kobo", "KoboReader.sqlite")] = []byte("sqlite")
	for _, book := range s.library.Books {
		s.files[strings.TrimPrefix(book.ContentID, "file://")] = make([]byte, 1024)
	}
	return s
}

// MountPath returns the simulated mount point.
func (s *Simulator) MountPath() string {
	return s.opts.MountPath
}

// step models one I/O call: an optional delay, then an injected failure
// with probability FailureRate. Callers hold no locks when it sleeps.
func (s *Simulator) step(ctx context.Context, op string) error {
	if s.opts.SimulateDelays {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(s.opts.OpDelay):
		}
	} else if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	failed := s.opts.FailureRate > 0 && s.rng.Float64() < s.opts.FailureRate
	s.mu.Unlock()
	if failed {
		return errors.Errorf("simulated %s failure", op)
	}
	return nil
}

// ListMountedVolumes reports the single simulated volume.
func (s *Simulator) ListMountedVolumes(ctx context.Context) ([]string, error) {
	if err := s.step(ctx, "list-volumes"); err != nil {
		return nil, err
	}
	return []string{s.opts.MountPath}, nil
}

func (s *Simulator) PathExists(ctx context.Context, p string) (bool, error) {
	if err := s.step(ctx, "stat"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirs[p] {
		return true, nil
	}
	_, ok := s.files[p]
	return ok, nil
}

func (s *Simulator) GetStorageInfo(ctx context.Context, _ string) (devices.StorageInfo, error) {
	if err := s.step(ctx, "statfs"); err != nil {
		return devices.StorageInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	used := int64(0)
	for _, data := range s.files {
		used += int64(len(data))
	}
	total := int64(32 << 30)
	return devices.StorageInfo{TotalBytes: total, FreeBytes: total - used}, nil
}

func (s *Simulator) CountFiles(ctx context.Context, p string, extensions []string) (int, error) {
	if err := s.step(ctx, "count"); err != nil {
		return 0, err
	}
	wanted := map[string]bool{}
	for _, ext := range extensions {
		wanted[strings.ToLower(ext)] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for name := range s.files {
		if !strings.HasPrefix(name, p) {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
		if wanted[ext] {
			count++
		}
	}
	return count, nil
}

func (s *Simulator) CreateDirectory(ctx context.Context, p string) error {
	if err := s.step(ctx, "mkdir"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for p != "/" && p != "." {
		s.dirs[p] = true
		p = path.Dir(p)
	}
	return nil
}

func (s *Simulator) CopyFile(ctx context.Context, sourcePath, targetPath string) error {
	if err := s.step(ctx, "copy"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[sourcePath]
	if !ok {
		return errors.Errorf("source does not exist: %s", sourcePath)
	}
	if !s.dirs[path.Dir(targetPath)] {
		return errors.Errorf("target directory does not exist: %s", path.Dir(targetPath))
	}
	s.files[targetPath] = append([]byte{}, data...)
	return nil
}

func (s *Simulator) FileSize(ctx context.Context, p string) (int64, error) {
	if err := s.step(ctx, "stat"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[p]
	if !ok {
		return 0, errors.Errorf("no such file: %s", p)
	}
	return int64(len(data)), nil
}

// WriteFile seeds a file into the simulated volume.
func (s *Simulator) WriteFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = data
	s.dirs[path.Dir(p)] = true
}

// HasFile reports whether the simulated volume holds a file.
func (s *Simulator) HasFile(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[p]
	return ok
}
