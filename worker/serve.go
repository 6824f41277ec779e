package worker

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pithecene-io/buildout/ipc"
	"github.com/pithecene-io/buildout/log"
)

// Serve runs the worker side of the protocol: it reads requests from r,
// runs each unit from registry and writes a result to w. Requests are
// handled one at a time. Serve returns nil on a shutdown frame or a clean
// end of input.
func Serve(ctx context.Context, r io.Reader, w io.Writer, registry *Registry, logger *log.Logger) error {
	dec := ipc.NewFrameDecoder(r)
	enc := ipc.NewFrameEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			return err
		}

		switch f := frame.(type) {
		case *ipc.Shutdown:
			return nil
		case *ipc.WorkRequest:
			start := time.Now()
			res := &ipc.WorkResult{Type: ipc.WorkResultType, ID: f.ID, OK: true}
			if err := registry.RunEncoded(ctx, f.Unit, f.Params); err != nil {
				res.OK = false
				res.Error = err.Error()
				logger.Warn("unit failed", map[string]any{
					"unit":  f.Unit,
					"id":    f.ID,
					"error": err.Error(),
				})
			}
			res.DurationMs = time.Since(start).Milliseconds()
			if err := enc.WriteFrame(res); err != nil {
				return err
			}
		default:
			return &ipc.FrameError{Kind: ipc.FrameErrorDecode, Msg: "unexpected frame from pool"}
		}
	}
}
