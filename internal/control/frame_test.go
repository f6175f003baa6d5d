package control

// Tests for the control frame layout and its failure modes.

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestWriteFrameLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, OpResponse, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	want := append([]byte{2, 0, 0, 0, 11, 0, 0, 0}, `{"ok":true}`...)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("frame = % x, want % x", buf.Bytes(), want)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, OpRequest, make([]byte, MaxPayloadSize)); err != nil {
		t.Fatalf("payload of exactly MaxPayloadSize: %v", err)
	}
	buf.Reset()
	err := WriteFrame(&buf, OpRequest, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes written for a rejected frame", buf.Len())
	}
}

func TestReadFrameSequence(t *testing.T) {
	sent := []struct {
		op      Opcode
		payload string
	}{
		{OpRequest, `{"cmd":"stop","nonce":"1"}`},
		{OpResponse, `{"ok":true}`},
		{OpClose, ""},
	}

	var buf bytes.Buffer
	for _, f := range sent {
		if err := WriteFrame(&buf, f.op, []byte(f.payload)); err != nil {
			t.Fatalf("WriteFrame(%s): %v", f.op, err)
		}
	}

	// One byte per Read exercises reassembly of partial reads.
	r := iotest.OneByteReader(&buf)
	for _, want := range sent {
		op, payload, err := ReadFrame(r)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if op != want.op || string(payload) != want.payload {
			t.Errorf("ReadFrame = %s %q, want %s %q", op, payload, want.op, want.payload)
		}
	}
	if _, _, err := ReadFrame(r); err != io.EOF {
		t.Errorf("ReadFrame at end = %v, want bare io.EOF", err)
	}
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"length over limit", []byte{1, 0, 0, 0, 0x01, 0x00, 0x10, 0x00}, ErrPayloadTooLarge},
		{"cut header", []byte{1, 0, 0}, io.ErrUnexpectedEOF},
		{"cut payload", append([]byte{1, 0, 0, 0, 20, 0, 0, 0}, "short"...), io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadFrame(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("ReadFrame = %v, want %v", err, tt.want)
			}
			if err == io.EOF {
				t.Error("a cut frame must not look like a clean hang-up")
			}
		})
	}
}

func TestOpcodeString(t *testing.T) {
	for op, want := range map[Opcode]string{
		OpRequest:  "request",
		OpResponse: "response",
		OpClose:    "close",
		Opcode(9):  "opcode(9)",
	} {
		if got := op.String(); got != want {
			t.Errorf("Opcode(%d).String() = %q, want %q", uint32(op), got, want)
		}
	}
}
