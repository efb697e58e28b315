package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
)

type Reader struct {
	file   *os.File
	name   string
	header SegmentHeader
	dict   []DictEntry
}

// OpenReader validates the header and the dictionary checksum and keeps the
// file open for value reads.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.name = filepath.Base(path)
	return r, nil
}

func load(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:       magic,
		Version:     binary.LittleEndian.Uint32(headerBytes[4:8]),
		KeyCount:    binary.LittleEndian.Uint32(headerBytes[8:12]),
		ValueCount:  binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset:  int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:    int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		ValueOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		ValueSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		CreatedAt:   int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(dictBytes) {
		return nil, fmt.Errorf("dictionary checksum mismatch")
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return &Reader{file: f, header: header, dict: dict}, nil
}

// Lookup returns the values stored under symbol in the named index, or nil.
func (r *Reader) Lookup(index, symbol string) ([]string, error) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return !r.dict[i].less(index, symbol)
	})
	if i >= len(r.dict) || r.dict[i].Index != index || r.dict[i].Symbol != symbol {
		return nil, nil
	}
	entry := r.dict[i]
	data := make([]byte, entry.Len)
	if _, err := r.file.ReadAt(data, r.header.ValueOffset+entry.Offset); err != nil {
		return nil, fmt.Errorf("reading values: %w", err)
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing values: %w", err)
	}
	return values, nil
}

func (r *Reader) Name() string {
	return r.name
}

func (r *Reader) Keys() int {
	return len(r.dict)
}

// ValueCount is the number of distinct values (artifacts or type names) in
// the segment.
func (r *Reader) ValueCount() uint32 {
	return r.header.ValueCount
}

func (r *Reader) Close() error {
	return r.file.Close()
}
