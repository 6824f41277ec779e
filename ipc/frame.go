// Package ipc implements the framing between a build process and its
// out-of-process workers.
//
// Every frame is a 4-byte big-endian payload length followed by a msgpack
// payload. The payload carries a "type" discriminant so a reader can tell
// requests, results and shutdown notices apart before decoding fully.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	WorkRequestType = "work_request"
	WorkResultType  = "work_result"
	ShutdownType    = "shutdown"
)

// WorkRequest asks a worker to run one unit. Params is the msgpack
// encoding of the unit's parameters.
type WorkRequest struct {
	Type   string `msgpack:"type"`
	ID     uint64 `msgpack:"id"`
	Unit   string `msgpack:"unit"`
	Params []byte `msgpack:"params"`
}

// WorkResult reports the outcome of the request with the same ID.
type WorkResult struct {
	Type       string `msgpack:"type"`
	ID         uint64 `msgpack:"id"`
	OK         bool   `msgpack:"ok"`
	Error      string `msgpack:"error,omitempty"`
	DurationMs int64  `msgpack:"duration_ms"`
}

// Shutdown tells a worker no further requests follow.
type Shutdown struct {
	Type string `msgpack:"type"`
}

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorEncode indicates a msgpack encoding or write error.
	FrameErrorEncode
)

// FrameError represents a frame error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot be read further.
// Partial and oversized frames leave the stream out of sync.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// FrameEncoder writes length-prefixed msgpack frames. Safe for concurrent use.
type FrameEncoder struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame encodes v as msgpack and writes it as one frame.
func (e *FrameEncoder) WriteFrame(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode frame", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.writer.Write(buf); err != nil {
		return &FrameError{Kind: FrameErrorEncode, Msg: "failed to write frame", Err: err}
	}
	return nil
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into *WorkRequest, *WorkResult or *Shutdown
// based on its type field.
func DecodeFrame(payload []byte) (any, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	switch probe.Type {
	case WorkRequestType:
		return decode[WorkRequest](payload, "work request")
	case WorkResultType:
		return decode[WorkResult](payload, "work result")
	case ShutdownType:
		return &Shutdown{Type: ShutdownType}, nil
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unknown frame type %q", probe.Type),
		}
	}
}

func decode[T any](payload []byte, what string) (*T, error) {
	var v T
	if err := msgpack.Unmarshal(payload, &v); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode " + what,
			Err:  err,
		}
	}
	return &v, nil
}

// EncodeParams encodes unit parameters for a WorkRequest.
func EncodeParams(params any) ([]byte, error) {
	return msgpack.Marshal(params)
}

// DecodeParams decodes unit parameters from a WorkRequest into dst.
func DecodeParams(data []byte, dst any) error {
	return msgpack.Unmarshal(data, dst)
}
