package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/born-mnist/internal/tensor"
)

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool // Skip checksum validation (faster but less safe)
}

// Reader reads a .born container from random-access storage. The fixed
// header, JSON header and every tensor entry are validated when the
// Reader is created.
type Reader struct {
	r          io.ReaderAt
	closer     io.Closer
	header     Header
	flags      uint32
	version    uint32
	dataOffset int64
	dataSize   int64
	checksum   [ChecksumSize]byte
}

// NewReader parses the container held in the first size bytes of r.
func NewReader(r io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	reader := &Reader{r: r}
	if err := reader.parse(size, opts); err != nil {
		return nil, err
	}
	return reader, nil
}

// Open opens the .born file at path. The caller must Close the reader.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: loading a user-selected checkpoint is the point
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	reader, err := NewReader(file, info.Size(), opts)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	reader.closer = file
	return reader, nil
}

// ReadFrom reads a whole container from r into memory.
func ReadFrom(r io.Reader, opts ReaderOptions) (*Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	return NewReader(bytes.NewReader(data), int64(len(data)), opts)
}

func (r *Reader) parse(size int64, opts ReaderOptions) error {
	if size < FixedHeaderSize {
		if size >= 4 {
			magic := make([]byte, 4)
			if _, err := r.r.ReadAt(magic, 0); err == nil && string(magic) != MagicBytes {
				return ErrInvalidMagic
			}
		}
		return fmt.Errorf("%w: %d bytes, fixed header needs %d", ErrTruncated, size, FixedHeaderSize)
	}

	fixed := make([]byte, FixedHeaderSize)
	if _, err := r.r.ReadAt(fixed, 0); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}

	r.version = binary.LittleEndian.Uint32(fixed[4:8])
	if r.version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, r.version, FormatVersion)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	copy(r.checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	r.dataOffset = dataOffset(int64(headerSize))
	if dataSize > uint64(size) || r.dataOffset+int64(dataSize) > size {
		return fmt.Errorf("%w: data section of %d bytes at offset %d exceeds file size %d",
			ErrTruncated, dataSize, r.dataOffset, size)
	}
	r.dataSize = int64(dataSize)

	headerJSON := make([]byte, headerSize)
	if _, err := r.r.ReadAt(headerJSON, FixedHeaderSize); err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	if err := ValidateHeader(&r.header, r.dataSize); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if !opts.SkipChecksumValidation {
		computed, err := ComputeChecksumReader(io.NewSectionReader(r.r, r.dataOffset, r.dataSize))
		if err != nil {
			return fmt.Errorf("failed to read tensor data for checksum: %w", err)
		}
		if err := ValidateChecksum(computed, r.checksum); err != nil {
			return err
		}
	}
	return nil
}

// Header returns the JSON header.
func (r *Reader) Header() Header {
	return r.header
}

// Flags returns the fixed header flags.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// Version returns the format version.
func (r *Reader) Version() uint32 {
	return r.version
}

// Checksum returns the stored SHA-256 of the data section.
func (r *Reader) Checksum() [ChecksumSize]byte {
	return r.checksum
}

// Metadata returns the metadata map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the tensor names in file order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.StateDict))
	for i, meta := range r.header.StateDict {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *Reader) TensorInfo(name string) (TensorMeta, error) {
	for _, meta := range r.header.StateDict {
		if meta.Name == name {
			return meta, nil
		}
	}
	return TensorMeta{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
}

// LoadTensor reads a single tensor. The bytes are copied verbatim, so
// float32 values round-trip exactly.
func (r *Reader) LoadTensor(name string) (*tensor.RawTensor, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	return r.load(meta)
}

func (r *Reader) load(meta TensorMeta) (*tensor.RawTensor, error) {
	dtype, _ := tensor.ParseDataType(meta.DType) // validated in parse
	data := make([]byte, meta.Size)
	if _, err := r.r.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", meta.Name, err)
	}
	raw, err := tensor.FromBytes(data, tensor.Shape(meta.Shape), dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", meta.Name, err)
	}
	return raw, nil
}

// ReadStateDict reads every tensor in the file.
func (r *Reader) ReadStateDict() (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(r.header.StateDict))
	for _, meta := range r.header.StateDict {
		raw, err := r.load(meta)
		if err != nil {
			return nil, err
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// ReadFile reads the header and state dict of the .born file at path.
func ReadFile(path string) (Header, map[string]*tensor.RawTensor, error) {
	reader, err := Open(path, ReaderOptions{})
	if err != nil {
		return Header{}, nil, err
	}
	defer reader.Close()

	stateDict, err := reader.ReadStateDict()
	if err != nil {
		return Header{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return reader.Header(), stateDict, nil
}
