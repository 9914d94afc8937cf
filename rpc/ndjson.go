package rpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/njfio/tau/tauerrors"
)

// DispatchFrameFile reads a single frame via readFile, dispatches it,
// and writes its response frame to out. Returns true if the response
// was an error frame.
func (d *Dispatcher) DispatchFrameFile(ctx context.Context, path string, readFile func(string) ([]byte, error), out io.Writer) (bool, error) {
	data, err := readFile(path)
	if err != nil {
		return false, err
	}
	frame, perr := ParseFrame(data)
	if perr != nil {
		errFrame := NewErrorFrame("", tauerrors.CodeOf(perr), perr.Error())
		return true, writeFrame(out, errFrame)
	}
	resp, after := d.Dispatch(ctx, frame, nil)
	if werr := writeFrame(out, resp); werr != nil {
		return resp.Kind == KindError, werr
	}
	if after != nil {
		after()
	}
	return resp.Kind == KindError, nil
}

// DispatchNDJSONFile processes every line of an NDJSON frame file
// independently, continuing after per-line errors, and writes one
// response frame per line to out. It returns the number of error frames
// produced.
func (d *Dispatcher) DispatchNDJSONFile(ctx context.Context, r io.Reader, out io.Writer) (errorCount int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		frame, perr := ParseFrame([]byte(line))
		var resp Frame
		var after func()
		if perr != nil {
			resp = NewErrorFrame("", tauerrors.CodeOf(perr), perr.Error())
		} else {
			resp, after = d.Dispatch(ctx, frame, nil)
		}
		if resp.Kind == KindError {
			errorCount++
		}
		if werr := writeFrame(out, resp); werr != nil {
			return errorCount, werr
		}
		if after != nil {
			after()
		}
	}
	if serr := scanner.Err(); serr != nil {
		return errorCount, serr
	}
	return errorCount, nil
}

// ServeNDJSON implements the interactive stdin/stdout serve mode: one
// reader task consumes r line by line, one writer task serializes every
// produced frame (synchronous responses and asynchronous stream events
// from spawned run workers) to w in the order they are produced, and
// each run.start spawns its own run-task goroutine via the configured
// RunWorker. Ordering guarantee: a request's response is always written
// before any stream event the same Dispatch call triggers, because the
// response itself is enqueued by the reader task immediately after
// Dispatch returns, while worker-produced stream events are queued onto
// the same writer channel and therefore serialize behind whatever was
// already enqueued ahead of them.
func (d *Dispatcher) ServeNDJSON(ctx context.Context, r io.Reader, w io.Writer) error {
	group, ctx := errgroup.WithContext(ctx)
	frames := make(chan Frame, 256)

	group.Go(func() error {
		defer close(frames)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			frame, perr := ParseFrame([]byte(line))
			if perr != nil {
				select {
				case frames <- NewErrorFrame("", tauerrors.CodeOf(perr), perr.Error()):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			resp, after := d.Dispatch(ctx, frame, func(streamFrame Frame) {
				select {
				case frames <- streamFrame:
				case <-ctx.Done():
				}
			})
			select {
			case frames <- resp:
			case <-ctx.Done():
				return ctx.Err()
			}
			if after != nil {
				after()
			}
		}
		return scanner.Err()
	})

	group.Go(func() error {
		for frame := range frames {
			if err := writeFrame(w, frame); err != nil {
				return err
			}
		}
		return nil
	})

	return group.Wait()
}

func writeFrame(w io.Writer, f Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
