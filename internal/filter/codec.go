package filter

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// On-disk layout: a 4-byte header (signature, type, version, flags),
// a type-specific body, and a trailing 4-byte CRC32 checksum of the body.
// Bad signature/type/version/checksum all map to ErrCorruptArtifact.
const (
	signature = 0x6C // 'l', arbitrary but stable magic byte

	headerSize    = 4
	checksumSize  = 4
	currentVersion = 1

	typeBloom byte = 'B'
	typeRange byte = 'R'
)

type header struct {
	typ     byte
	version byte
	flags   byte
}

func (h header) encodeInto(buf []byte) {
	buf[0] = signature
	buf[1] = h.typ
	buf[2] = h.version
	buf[3] = h.flags
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("%w: header too small", ErrCorruptArtifact)
	}
	if buf[0] != signature {
		return header{}, fmt.Errorf("%w: bad signature", ErrCorruptArtifact)
	}
	return header{typ: buf[1], version: buf[2], flags: buf[3]}, nil
}

var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

// Encode serializes f into the stable binary artifact format.
func Encode(f Filter) ([]byte, error) {
	switch v := f.(type) {
	case *BloomFilter:
		return encodeBloom(v), nil
	case *RangeFilter:
		return encodeRange(v), nil
	default:
		return nil, fmt.Errorf("filter: unknown filter type %T", f)
	}
}

// Decode deserializes an artifact previously produced by Encode.
func Decode(data []byte) (Filter, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.version != currentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptArtifact, h.version)
	}

	body := data[headerSize:]
	if len(body) < checksumSize {
		return nil, fmt.Errorf("%w: body too small", ErrCorruptArtifact)
	}
	payload := body[:len(body)-checksumSize]
	wantSum := binary.LittleEndian.Uint32(body[len(body)-checksumSize:])
	if gotSum := crc32.ChecksumIEEE(payload); gotSum != wantSum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptArtifact)
	}

	switch h.typ {
	case typeBloom:
		return decodeBloomBody(payload)
	case typeRange:
		return decodeRangeBody(payload)
	default:
		return nil, fmt.Errorf("%w: unknown type byte 0x%02x", ErrCorruptArtifact, h.typ)
	}
}

func encodeBloom(b *BloomFilter) []byte {
	raw := make([]byte, len(b.bits)*8)
	for i, w := range b.bits {
		binary.LittleEndian.PutUint64(raw[i*8:], w)
	}
	compressed := zstdEncoder.EncodeAll(raw, nil)

	// capacity(8) + errorRate(8) + m(8) + k(8) + compressedLen(4)
	fixed := 8 + 8 + 8 + 8 + 4
	body := make([]byte, fixed+len(compressed)+checksumSize)

	cursor := 0
	binary.LittleEndian.PutUint64(body[cursor:], b.n)
	cursor += 8
	binary.LittleEndian.PutUint64(body[cursor:], math.Float64bits(b.errorRate))
	cursor += 8
	binary.LittleEndian.PutUint64(body[cursor:], b.m)
	cursor += 8
	binary.LittleEndian.PutUint64(body[cursor:], b.k)
	cursor += 8
	binary.LittleEndian.PutUint32(body[cursor:], uint32(len(compressed)))
	cursor += 4
	copy(body[cursor:], compressed)
	cursor += len(compressed)

	payload := body[:cursor]
	binary.LittleEndian.PutUint32(body[cursor:], crc32.ChecksumIEEE(payload))

	out := make([]byte, headerSize+len(body))
	header{typ: typeBloom, version: currentVersion}.encodeInto(out)
	copy(out[headerSize:], body)
	return out
}

func decodeBloomBody(payload []byte) (*BloomFilter, error) {
	const fixed = 8 + 8 + 8 + 8 + 4
	if len(payload) < fixed {
		return nil, fmt.Errorf("%w: bloom body too small", ErrCorruptArtifact)
	}
	cursor := 0
	capacity := binary.LittleEndian.Uint64(payload[cursor:])
	cursor += 8
	errorRate := math.Float64frombits(binary.LittleEndian.Uint64(payload[cursor:]))
	cursor += 8
	m := binary.LittleEndian.Uint64(payload[cursor:])
	cursor += 8
	k := binary.LittleEndian.Uint64(payload[cursor:])
	cursor += 8
	compressedLen := binary.LittleEndian.Uint32(payload[cursor:])
	cursor += 4

	if uint64(cursor)+uint64(compressedLen) > uint64(len(payload)) {
		return nil, fmt.Errorf("%w: bloom compressed length mismatch", ErrCorruptArtifact)
	}
	compressed := payload[cursor : cursor+int(compressedLen)]

	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress bit array: %v", ErrCorruptArtifact, err)
	}

	words := (m + 63) / 64
	if uint64(len(raw)) != words*8 {
		return nil, fmt.Errorf("%w: bit array size mismatch", ErrCorruptArtifact)
	}
	bits := make([]uint64, words)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}

	return NewBloomFilterFromBits(m, k, capacity, errorRate, bits), nil
}

func encodeRange(r *RangeFilter) []byte {
	const fixed = 1 + 1 + 8 + 8 + 8 + 8
	body := make([]byte, fixed+checksumSize)

	cursor := 0
	body[cursor] = byte(r.DType)
	cursor++
	if r.Empty {
		body[cursor] = 1
	}
	cursor++
	binary.LittleEndian.PutUint64(body[cursor:], math.Float64bits(r.minNum))
	cursor += 8
	binary.LittleEndian.PutUint64(body[cursor:], math.Float64bits(r.maxNum))
	cursor += 8
	binary.LittleEndian.PutUint64(body[cursor:], uint64(r.minTime))
	cursor += 8
	binary.LittleEndian.PutUint64(body[cursor:], uint64(r.maxTime))
	cursor += 8

	payload := body[:cursor]
	binary.LittleEndian.PutUint32(body[cursor:], crc32.ChecksumIEEE(payload))

	out := make([]byte, headerSize+len(body))
	header{typ: typeRange, version: currentVersion}.encodeInto(out)
	copy(out[headerSize:], body)
	return out
}

func decodeRangeBody(payload []byte) (*RangeFilter, error) {
	const fixed = 1 + 1 + 8 + 8 + 8 + 8
	if len(payload) < fixed {
		return nil, fmt.Errorf("%w: range body too small", ErrCorruptArtifact)
	}
	cursor := 0
	dtype := DType(payload[cursor])
	cursor++
	empty := payload[cursor] != 0
	cursor++
	minNum := math.Float64frombits(binary.LittleEndian.Uint64(payload[cursor:]))
	cursor += 8
	maxNum := math.Float64frombits(binary.LittleEndian.Uint64(payload[cursor:]))
	cursor += 8
	minTime := int64(binary.LittleEndian.Uint64(payload[cursor:]))
	cursor += 8
	maxTime := int64(binary.LittleEndian.Uint64(payload[cursor:]))
	cursor += 8

	return &RangeFilter{
		DType:   dtype,
		Empty:   empty,
		minNum:  minNum,
		maxNum:  maxNum,
		minTime: minTime,
		maxTime: maxTime,
	}, nil
}

// WriteAtomic writes data to dir/name, first to a temp file in the same
// directory and then renaming into place, so a reader never observes a
// partially-written artifact. Mirrors the indexer's all-or-nothing write
// discipline: a per-shard build failure must never leave a corrupt file
// for the discovery loader to pick up.
func WriteAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Load reads and decodes the artifact at path.
func Load(path string) (Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
