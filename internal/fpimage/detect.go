package fpimage

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrDetection is returned (wrapped) when the extractor fails on a raster.
var ErrDetection = errors.New("minutiae detection failed")

// Raster is the private working copy handed to an Extractor. It is already
// normalized when the extractor sees it. PPMM is the scan resolution that
// pixel distances in the extractor are scaled by.
type Raster struct {
	Width, Height int
	PPMM          float64
	Data          []byte
}

// Extraction is everything an Extractor derives from a raster. Maps are
// block-wise with MapWidth x MapHeight entries.
type Extraction struct {
	Minutiae  []Minutia
	Binarized []byte

	MapWidth, MapHeight int
	QualityMap          []int
	// DirectionMap holds ridge directions in 16ths of pi, -1 for background.
	DirectionMap []int
	// The flag maps are 1 for background blocks, blocks without a dominant
	// ridge flow and blocks where the flow turns sharply.
	LowContrastMap []int
	LowFlowMap     []int
	HighCurveMap   []int
}

// Extractor computes minutiae for a normalized raster. Implementations may
// be slow; they run on a worker goroutine.
type Extractor interface {
	Extract(ctx context.Context, r Raster) (*Extraction, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, r Raster) (*Extraction, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, r Raster) (*Extraction, error) {
	return f(ctx, r)
}

// Detector runs an Extractor on a bounded pool of worker goroutines.
type Detector struct {
	extractor Extractor
	sem       *semaphore.Weighted
	log       *zap.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithWorkers bounds the number of concurrent extractions.
func WithWorkers(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger used for detection timing.
func WithLogger(l *zap.Logger) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDetector returns a Detector using ex. Without WithWorkers the pool is
// sized to GOMAXPROCS.
func NewDetector(ex Extractor, opts ...DetectorOption) *Detector {
	d := &Detector{
		extractor: ex,
		sem:       semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type detectResult struct {
	data    []byte
	flags   Flags
	ext     *Extraction
	err     error
	elapsed time.Duration
}

// Detection is one in-flight minutiae detection. The image it was started
// on is not touched until Wait commits the result.
type Detection struct {
	img     *Image
	ctx     context.Context
	results chan detectResult

	waited bool
	ext    *Extraction
	err    error
}

// Detect runs detection on img and commits the result before returning.
func (d *Detector) Detect(ctx context.Context, img *Image) error {
	return d.Start(ctx, img).Wait()
}

// Start snapshots img and begins detection in the background. The caller
// keeps using img freely until it calls Wait on the returned Detection.
func (d *Detector) Start(ctx context.Context, img *Image) *Detection {
	job := &Detection{
		img:     img,
		ctx:     ctx,
		results: make(chan detectResult, 1),
	}
	r := Raster{
		Width:  img.width,
		Height: img.height,
		PPMM:   img.ppmm,
		Data:   append([]byte(nil), img.data...),
	}
	flags := img.flags

	go func() {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			job.results <- detectResult{err: err}
			return
		}
		defer d.sem.Release(1)
		job.results <- d.run(ctx, r, flags)
	}()
	return job
}

func (d *Detector) run(ctx context.Context, r Raster, flags Flags) detectResult {
	if flags&FlagHFlipped != 0 {
		HFlip(r.Data, r.Width, r.Height)
	}
	if flags&FlagVFlipped != 0 {
		VFlip(r.Data, r.Width, r.Height)
	}
	if flags&FlagColorsInverted != 0 {
		InvertColors(r.Data)
	}
	flags &^= NormalizationFlags

	start := time.Now()
	ext, err := d.extractor.Extract(ctx, r)
	elapsed := time.Since(start)
	if err != nil {
		return detectResult{err: fmt.Errorf("%w: %w", ErrDetection, err), elapsed: elapsed}
	}
	if ext == nil || len(ext.Binarized) != len(r.Data) {
		return detectResult{err: fmt.Errorf("%w: extractor returned no binarized raster", ErrDetection), elapsed: elapsed}
	}

	d.log.Debug("minutiae scan completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("minutiae", len(ext.Minutiae)))

	return detectResult{data: r.Data, flags: flags, ext: ext, elapsed: elapsed}
}

// Wait blocks until the worker finishes and then, on the calling goroutine,
// either commits the result to the image or discards it. A result is
// discarded when the context was cancelled in the meantime; the image then
// keeps its original raster and flags. Wait may be called more than once.
func (j *Detection) Wait() error {
	if j.waited {
		return j.err
	}
	res := <-j.results
	j.waited = true
	j.err = j.commit(res)
	return j.err
}

// Extraction returns the maps produced by the extractor once Wait has
// committed a result. Its Minutiae field is empty: they were moved into the
// image.
func (j *Detection) Extraction() *Extraction {
	return j.ext
}

func (j *Detection) commit(res detectResult) error {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	if res.err != nil {
		return res.err
	}

	img := j.img
	img.data = res.data
	img.flags = res.flags
	img.binarized = res.ext.Binarized
	img.minutiae = res.ext.Minutiae
	if img.minutiae == nil {
		img.minutiae = []Minutia{}
	}

	// The image owns the minutiae and binarized raster now.
	res.ext.Minutiae = nil
	res.ext.Binarized = nil
	j.ext = res.ext
	return nil
}
