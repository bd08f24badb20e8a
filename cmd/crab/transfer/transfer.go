// Package transfer copies remote files into local paths, some at once.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	Success Status = "SUCCESS"
	Failed  Status = "FAILED"
)

// File is a remote file to be copied.
type File struct {
	// job which has produced the file
	JobID string

	// logical file name
	LFN string

	// URL to read the file from
	Source string

	// size told by the server. -1 if unknown.
	Size int64

	// local path to write
	Dest string
}

// Outcome of a copy of a File.
type Outcome struct {
	File   File
	Status Status

	// bytes written
	Bytes int64

	// the file is there already, and is not copied again.
	Skipped bool

	// reason of the failure. nil for Success.
	Err error
}

// Copier writes the content at source into w.
type Copier func(ctx context.Context, source string, w io.Writer) (int64, error)

const DefaultParallel = 10

type Pool struct {
	copy     Copier
	parallel int
	wait     time.Duration
	progress io.Writer
}

type Option func(*Pool)

// WithParallel limits concurrent copies to n. n < 1 means 1.
func WithParallel(n int) Option {
	return func(p *Pool) { p.parallel = max(n, 1) }
}

// WithWait limits each copy to d. 0 means no limit.
func WithWait(d time.Duration) Option {
	return func(p *Pool) { p.wait = d }
}

// WithProgress shows a progress bar counting finished files in w.
func WithProgress(w io.Writer) Option {
	return func(p *Pool) { p.progress = w }
}

func New(copier Copier, opts ...Option) *Pool {
	p := &Pool{copy: copier, parallel: DefaultParallel}
	for _, o := range opts {
		o(p)
	}
	return p
}

const bar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }}`

// Run copies files, and waits all of them.
//
// # Returns
//
// - []Outcome: one for each file, in the order of files.
//
// Failed copies do not stop others. When ctx is done, copies not started yet
// fail with ctx.Err().
func (p *Pool) Run(ctx context.Context, files []File) []Outcome {
	outcomes := make([]Outcome, len(files))

	var b *pb.ProgressBar
	if p.progress != nil && 0 < len(files) {
		b = bar.New(len(files))
		b.SetWriter(p.progress)
		b.Set("prefix", "retrieving:")
		b.Start()
	}
	done := func() {
		if b != nil {
			b.Increment()
		}
	}

	eg := new(errgroup.Group)
	eg.SetLimit(p.parallel)
	for i, f := range files {
		eg.Go(func() error {
			defer done()
			outcomes[i] = p.transfer(ctx, f)
			return nil
		})
	}
	eg.Wait()

	if b != nil {
		b.Set("prefix", "done.:")
		b.Finish()
	}
	return outcomes
}

func (p *Pool) transfer(ctx context.Context, f File) Outcome {
	fail := func(err error) Outcome {
		return Outcome{File: f, Status: Failed, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if stat, err := os.Stat(f.Dest); err == nil && !stat.IsDir() && 0 <= f.Size && stat.Size() == f.Size {
		return Outcome{File: f, Status: Success, Bytes: 0, Skipped: true}
	}

	if p.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.wait)
		defer cancel()
	}

	if err := os.MkdirAll(filepath.Dir(f.Dest), os.FileMode(0755)); err != nil {
		return fail(err)
	}

	part := f.Dest + ".part"
	w, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0644))
	if err != nil {
		return fail(err)
	}

	n, err := p.copy(ctx, f.Source, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err == nil && 0 <= f.Size && n != f.Size {
		err = fmt.Errorf("size mismatch: expected %d bytes, got %d", f.Size, n)
	}
	if err != nil {
		os.Remove(part)
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("not finished in %s: %w", p.wait, err)
		}
		return Outcome{File: f, Status: Failed, Bytes: n, Err: err}
	}

	if err := os.Rename(part, f.Dest); err != nil {
		os.Remove(part)
		return fail(err)
	}
	return Outcome{File: f, Status: Success, Bytes: n}
}

// Count tells how many outcomes have each status.
func Count(outcomes []Outcome) (succeeded int, failed int) {
	for _, o := range outcomes {
		switch o.Status {
		case Success:
			succeeded++
		default:
			failed++
		}
	}
	return
}
