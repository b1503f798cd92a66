// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package capture records presented frames as PNG images into a kar
// archive.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"sync"
	"time"

	"github.com/devblok/triangle/gfx"
	"github.com/devblok/triangle/gfx/soft"
	"github.com/devblok/triangle/utility/kar"
	log "github.com/sirupsen/logrus"
)

// ArchiveVersion is the kar version capture archives are written with.
const ArchiveVersion = 1

// ErrNoFrame is returned by ReadFrame for indices not in the archive.
var ErrNoFrame = errors.New("capture: no such frame")

// FrameName returns the archive entry name of the i-th frame.
func FrameName(i int) string {
	return fmt.Sprintf("frame%05d.png", i)
}

// Recorder accumulates frames. It is safe for concurrent use.
type Recorder struct {
	builder *kar.Builder
	log     log.FieldLogger

	mu     sync.Mutex
	frames int
	limit  int
}

// NewRecorder creates a recorder. A limit above zero stops recording
// after that many frames.
func NewRecorder(author string, limit int, logger log.FieldLogger) (*Recorder, error) {
	b, err := kar.NewBuilder(kar.Header{
		Author:      author,
		DateCreated: time.Now().Unix(),
		Version:     ArchiveVersion,
	})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Recorder{builder: b, log: logger, limit: limit}, nil
}

// Add encodes img and appends it as the next frame. Frames past the
// limit are dropped silently.
func (r *Recorder) Add(img image.Image) error {
	r.mu.Lock()
	if r.limit > 0 && r.frames >= r.limit {
		r.mu.Unlock()
		return nil
	}
	n := r.frames
	r.frames++
	r.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("capture: encode frame %d: %w", n, err)
	}
	if err := r.builder.Add(FrameName(n), &buf); err != nil {
		return fmt.Errorf("capture: store frame %d: %w", n, err)
	}
	r.log.WithField("frame", n).Trace("Captured frame")
	return nil
}

// Frames returns the number of frames recorded.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// WriteTo writes the archive of everything recorded so far.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	return r.builder.WriteTo(w)
}

// Save writes the archive to path, replacing any existing file.
func (r *Recorder) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := r.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("capture: write %s: %w", path, err)
	}
	r.log.WithFields(log.Fields{
		"path":   path,
		"frames": r.Frames(),
		"bytes":  n,
	}).Info("Capture saved")
	return nil
}

// Close discards the recorder's temporary storage.
func (r *Recorder) Close() error {
	return r.builder.Close()
}

// Window wraps a host window and records every frame presented to it.
// Frames are forwarded to the wrapped window first when it is a
// soft.Presenter.
type Window struct {
	gfx.Window
	rec *Recorder
}

// NewWindow wraps w.
func NewWindow(w gfx.Window, rec *Recorder) *Window {
	return &Window{Window: w, rec: rec}
}

// PresentImage implements soft.Presenter.
func (w *Window) PresentImage(img *image.RGBA) error {
	var err error
	if p, ok := w.Window.(soft.Presenter); ok {
		err = p.PresentImage(img)
	}
	return errors.Join(err, w.rec.Add(img))
}

// Recorder returns the recorder frames go to.
func (w *Window) Recorder() *Recorder {
	return w.rec
}

// ReadFrame decodes the i-th frame of a capture archive.
func ReadFrame(ar *kar.Archive, i int) (image.Image, error) {
	name := FrameName(i)
	header := ar.Header()
	if _, ok := header.Find(name); !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoFrame, i)
	}
	rd, err := ar.Open(name)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("capture: decode %s: %w", name, err)
	}
	return img, nil
}
