package speech

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compression 帧载荷的压缩方式
type compression uint8

const (
	compressNone compression = 0b0000
	compressGzip compression = 0b0001
)

func (c compression) encode(data []byte) ([]byte, error) {
	switch c {
	case compressNone:
		return data, nil
	case compressGzip:
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			writer.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", c)
	}
}

func (c compression) decode(data []byte) ([]byte, error) {
	switch c {
	case compressNone:
		return data, nil
	case compressGzip:
		if len(data) == 0 {
			return nil, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer reader.Close()

		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip read failed: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", c)
	}
}
