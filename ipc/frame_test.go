package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// encodeFrame encodes a raw payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

type copyParams struct {
	Input  string `msgpack:"input"`
	Output string `msgpack:"output"`
}

func TestFrameEncoder_RequestResultStream(t *testing.T) {
	params, err := EncodeParams(copyParams{Input: "/in/a.dex", Output: "/out/a.dex"})
	if err != nil {
		t.Fatalf("EncodeParams failed: %v", err)
	}

	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)
	frames := []any{
		&WorkRequest{Type: WorkRequestType, ID: 1, Unit: "copy", Params: params},
		&WorkResult{Type: WorkResultType, ID: 1, OK: false, Error: "disk full", DurationMs: 3},
		&Shutdown{Type: ShutdownType},
	}
	for _, f := range frames {
		if err := enc.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	dec := NewFrameDecoder(&buf)

	payload, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	v, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	req, ok := v.(*WorkRequest)
	if !ok {
		t.Fatalf("expected *WorkRequest, got %T", v)
	}
	if req.ID != 1 || req.Unit != "copy" {
		t.Errorf("unexpected request %+v", req)
	}
	var got copyParams
	if err := DecodeParams(req.Params, &got); err != nil {
		t.Fatalf("DecodeParams failed: %v", err)
	}
	if got.Output != "/out/a.dex" {
		t.Errorf("Output = %q, want /out/a.dex", got.Output)
	}

	payload, err = dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	v, err = DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	res, ok := v.(*WorkResult)
	if !ok {
		t.Fatalf("expected *WorkResult, got %T", v)
	}
	if res.OK || res.Error != "disk full" {
		t.Errorf("unexpected result %+v", res)
	}

	payload, err = dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	v, err = DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if _, ok := v.(*Shutdown); !ok {
		t.Fatalf("expected *Shutdown, got %T", v)
	}

	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameDecoder_PartialFrame(t *testing.T) {
	payload, _ := msgpack.Marshal(&WorkResult{Type: WorkResultType, ID: 7, OK: true})
	frame := encodeFrame(payload)

	dec := NewFrameDecoder(bytes.NewReader(frame[:len(frame)-2]))
	_, err := dec.ReadFrame()
	if err == nil {
		t.Fatal("expected error for partial frame")
	}
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
	if !IsFatalFrameError(err) {
		t.Error("partial frame should be fatal")
	}
}

func TestFrameDecoder_TruncatedLengthPrefix(t *testing.T) {
	dec := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x01}))
	_, err := dec.ReadFrame()
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
}

func TestFrameDecoder_OversizedFrame(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)

	dec := NewFrameDecoder(bytes.NewReader(prefix[:]))
	_, err := dec.ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %v", err)
	}
	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	dec := NewFrameDecoder(bytes.NewReader(nil))
	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	_, err := DecodeFrame([]byte{0xc1})
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %v", err)
	}
	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}
	if IsFatalFrameError(err) {
		t.Error("decode errors should not be fatal")
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	payload, _ := msgpack.Marshal(map[string]any{"type": "run_result"})
	_, err := DecodeFrame(payload)
	if err == nil || !strings.Contains(err.Error(), "run_result") {
		t.Errorf("expected unknown frame type error, got %v", err)
	}
}

func TestFrameError_Unwrap(t *testing.T) {
	inner := io.ErrUnexpectedEOF
	err := &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected FrameError to unwrap to inner error")
	}
	if err.Error() != "failed to read payload: unexpected EOF" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func BenchmarkReadFrame_RequestStream(b *testing.B) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)
	for i := range 100 {
		_ = enc.WriteFrame(&WorkRequest{Type: WorkRequestType, ID: uint64(i), Unit: "digest"})
	}
	stream := buf.Bytes()

	for b.Loop() {
		dec := NewFrameDecoder(bytes.NewReader(stream))
		for {
			payload, err := dec.ReadFrame()
			if err != nil {
				break
			}
			if _, err := DecodeFrame(payload); err != nil {
				b.Fatal(err)
			}
		}
	}
}
