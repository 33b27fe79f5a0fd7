package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 火山引擎 v3 二进制帧：4 字节头，随后依标志携带序号、事件元数据、载荷长度与载荷。
const frameVersion = 0b0001

type frameKind uint8

const (
	frameFullClient  frameKind = 0b0001
	frameFullServer  frameKind = 0b1001
	frameAudioServer frameKind = 0b1011
	frameError       frameKind = 0b1111
)

type frameFlags uint8

const (
	flagNone         frameFlags = 0b0000
	flagSequence     frameFlags = 0b0001
	flagLast         frameFlags = 0b0010
	flagLastSequence frameFlags = 0b0011
	flagEvent        frameFlags = 0b0100
)

type frameSerialization uint8

const (
	serialRaw  frameSerialization = 0b0000
	serialJSON frameSerialization = 0b0001
)

// 服务端事件
const (
	eventStartConnection    int32 = 1
	eventFinishConnection   int32 = 2
	eventConnectionStarted  int32 = 50
	eventConnectionFailed   int32 = 51
	eventConnectionFinished int32 = 52
	eventSessionStarted     int32 = 150
	eventSessionFinished    int32 = 152
	eventSessionFailed      int32 = 153
)

var errShortFrame = errors.New("frame truncated")

type frame struct {
	kind          frameKind
	flags         frameFlags
	serialization frameSerialization
	compression   compression
	sequence      int32
	event         int32
	sessionID     string
	connectID     string
	code          uint32
	payload       []byte
}

func (f *frame) hasSequence() bool {
	s := f.flags & flagLastSequence
	return s == flagSequence || s == flagLastSequence
}

func (f *frame) hasEvent() bool {
	return f.flags&flagEvent != 0
}

// last 判断是否为最后一包
func (f *frame) last() bool {
	s := f.flags & flagLastSequence
	return s == flagLast || s == flagLastSequence || (f.hasSequence() && f.sequence < 0)
}

func eventCarriesSession(event int32) bool {
	switch event {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return false
	}
	return true
}

func eventCarriesConnect(event int32) bool {
	switch event {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func appendUint32(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

func appendSized(dst []byte, s string) []byte {
	dst = appendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func (f *frame) encode() []byte {
	out := []byte{
		frameVersion<<4 | 0b0001,
		byte(f.kind)<<4 | byte(f.flags),
		byte(f.serialization)<<4 | byte(f.compression),
		0x00,
	}

	if f.hasSequence() {
		out = appendUint32(out, uint32(f.sequence))
	}
	if f.hasEvent() {
		out = appendUint32(out, uint32(f.event))
		if eventCarriesSession(f.event) {
			out = appendSized(out, f.sessionID)
		}
		if eventCarriesConnect(f.event) {
			out = appendSized(out, f.connectID)
		}
	}
	if f.kind == frameError {
		out = appendUint32(out, f.code)
	}

	out = appendUint32(out, uint32(len(f.payload)))
	return append(out, f.payload...)
}

type frameReader struct {
	data []byte
	pos  int
}

func (r *frameReader) next(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, errShortFrame
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *frameReader) uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *frameReader) sized() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFrame(data []byte) (*frame, error) {
	r := &frameReader{data: data}

	head, err := r.next(4)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version := head[0] >> 4; version != frameVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}
	// 头部以 4 字节为单位，扩展部分直接跳过
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.next(extra); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	f := &frame{
		kind:          frameKind(head[1] >> 4),
		flags:         frameFlags(head[1] & 0x0F),
		serialization: frameSerialization(head[2] >> 4),
		compression:   compression(head[2] & 0x0F),
	}

	if f.hasSequence() {
		seq, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
		f.sequence = int32(seq)
	}

	if f.hasEvent() {
		event, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		f.event = int32(event)

		if eventCarriesSession(f.event) {
			if f.sessionID, err = r.sized(); err != nil {
				return nil, fmt.Errorf("read session id: %w", err)
			}
		}
		if eventCarriesConnect(f.event) {
			if f.connectID, err = r.sized(); err != nil {
				return nil, fmt.Errorf("read connect id: %w", err)
			}
		}
	}

	if f.kind == frameError {
		if f.code, err = r.uint32(); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	size, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	if f.payload, err = r.next(int(size)); err != nil {
		return nil, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
	}

	return f, nil
}

// body 返回解压后的载荷
func (f *frame) body() ([]byte, error) {
	return f.compression.decode(f.payload)
}
