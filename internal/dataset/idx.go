package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// IDX magic numbers.
const (
	imagesMagic = 0x00000803 // 2051
	labelsMagic = 0x00000801 // 2049
)

// maxIDXBytes bounds the payload a header may announce.
const maxIDXBytes = 1 << 30

// ErrInvalidIDX is returned for malformed IDX data.
var ErrInvalidIDX = errors.New("invalid IDX data")

// maybeGunzip returns a reader over the decompressed stream when r starts
// with the gzip magic, and r itself otherwise.
func maybeGunzip(r io.Reader) (io.Reader, func() error, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err == nil && head[0] == 0x1f && head[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, zr.Close, nil
	}
	return br, func() error { return nil }, nil
}

func readHeader(r io.Reader, magic uint32, dims int) ([]int, error) {
	var got uint32
	if err := binary.Read(r, binary.BigEndian, &got); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("%w: magic %d, want %d", ErrInvalidIDX, got, magic)
	}

	sizes := make([]uint32, dims)
	if err := binary.Read(r, binary.BigEndian, sizes); err != nil {
		return nil, fmt.Errorf("failed to read dimensions: %w", err)
	}

	out := make([]int, dims)
	total := uint64(1)
	for i, s := range sizes {
		total *= uint64(s)
		if total > maxIDXBytes {
			return nil, fmt.Errorf("%w: dimensions %v too large", ErrInvalidIDX, sizes)
		}
		out[i] = int(s)
	}
	return out, nil
}

// ReadImages reads an IDX image file (magic 2051), gzipped or not.
// Pixels are scaled from 0-255 to [0, 1] and each image is flattened to
// rows*cols values.
func ReadImages(r io.Reader) (images [][]float32, rows, cols int, err error) {
	src, closeFn, err := maybeGunzip(r)
	if err != nil {
		return nil, 0, 0, err
	}
	defer func() {
		if cerr := closeFn(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	dims, err := readHeader(src, imagesMagic, 3)
	if err != nil {
		return nil, 0, 0, err
	}
	n, rows, cols := dims[0], dims[1], dims[2]

	pixels := make([]byte, n*rows*cols)
	if _, err := io.ReadFull(src, pixels); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read %d images: %w", n, err)
	}

	size := rows * cols
	flat := make([]float32, len(pixels))
	for i, p := range pixels {
		flat[i] = float32(p) / 255.0
	}
	images = make([][]float32, n)
	for i := range images {
		images[i] = flat[i*size : (i+1)*size : (i+1)*size]
	}
	return images, rows, cols, nil
}

// ReadLabels reads an IDX label file (magic 2049), gzipped or not.
func ReadLabels(r io.Reader) (labels []int32, err error) {
	src, closeFn, err := maybeGunzip(r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := closeFn(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	dims, err := readHeader(src, labelsMagic, 1)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, dims[0])
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, fmt.Errorf("failed to read %d labels: %w", dims[0], err)
	}
	labels = make([]int32, len(raw))
	for i, b := range raw {
		labels[i] = int32(b)
	}
	return labels, nil
}

// WriteImages writes images as an uncompressed IDX image file. Values are
// clamped to [0, 1] and quantized to bytes.
func WriteImages(w io.Writer, images [][]float32, rows, cols int) error {
	header := []uint32{imagesMagic, uint32(len(images)), uint32(rows), uint32(cols)}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return err
	}
	buf := make([]byte, rows*cols)
	for i, img := range images {
		if len(img) != rows*cols {
			return fmt.Errorf("image %d has %d values, want %d", i, len(img), rows*cols)
		}
		for j, v := range img {
			buf[j] = byte(min(max(v, 0), 1)*255 + 0.5)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// WriteLabels writes labels as an uncompressed IDX label file.
func WriteLabels(w io.Writer, labels []int32) error {
	if err := binary.Write(w, binary.BigEndian, []uint32{labelsMagic, uint32(len(labels))}); err != nil {
		return err
	}
	buf := make([]byte, len(labels))
	for i, l := range labels {
		if l < 0 || l > 255 {
			return fmt.Errorf("label %d out of byte range: %d", i, l)
		}
		buf[i] = byte(l)
	}
	_, err := w.Write(buf)
	return err
}
