package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/index"
)

// MagicBytes identifies a valid .cidx segment file ("CIDX").
const (
	MagicBytes    uint32 = 0x43494458
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".cidx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic       uint32
	Version     uint32
	KeyCount    uint32
	ValueCount  uint32
	CreatedAt   int64
	DictOffset  int64
	DictSize    int64
	ValueOffset int64
	ValueSize   int64
}

// DictEntry maps an (index, symbol) key to its value list in the segment
// file. The dictionary is sorted by index, then symbol.
type DictEntry struct {
	Index    string `json:"i"`
	Symbol   string `json:"s"`
	Offset   int64  `json:"o"`
	Len      int    `json:"l"`
	ValueCnt int    `json:"n"`
}

func (d DictEntry) less(index, symbol string) bool {
	if d.Index != index {
		return d.Index < index
	}
	return d.Symbol < symbol
}

// Writer serialises index snapshots into new .cidx segment files.
type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing entries, which must
// be ordered as MemoryIndex.Snapshot orders them. It writes to a .tmp file
// first and renames on success.
func (w *Writer) Write(entries []index.Entry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%d%s", time.Now().UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(time.Now().Unix()))
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	valuesStart := int64(HeaderSize)
	pos := valuesStart
	dict := make([]DictEntry, 0, len(entries))
	distinct := make(map[string]struct{})
	for _, entry := range entries {
		data, err := json.Marshal(entry.Values)
		if err != nil {
			return "", fmt.Errorf("marshaling values for %s %q: %w", entry.Index, entry.Symbol, err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing values for %s %q: %w", entry.Index, entry.Symbol, err)
		}
		dict = append(dict, DictEntry{
			Index:    entry.Index,
			Symbol:   entry.Symbol,
			Offset:   pos - valuesStart,
			Len:      len(data),
			ValueCnt: len(entry.Values),
		})
		pos += int64(len(data))
		for _, v := range entry.Values {
			distinct[v] = struct{}{}
		}
	}

	valuesSize := pos - valuesStart
	dictStart := pos
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	dictSize := int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(distinct)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(valuesSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(distinct)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(dictSize))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(valuesStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(valuesSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}
