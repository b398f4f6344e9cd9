// Package wal implements the append-only write-ahead log: single-file
// segments framed with length-prefixed CRC-validated records, and a
// directory-level manager that rotates segments by size and streams
// events back across all of them in order.
package wal

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/abdoElHodaky/lobcore/pkg/coreerrors"
)

const (
	magic         = "SQWL"
	headerVersion = uint16(1)
	headerSize    = 32
)

// header mirrors the on-disk 32-byte segment header, little-endian
// throughout: magic(4) | version u16 | flags u16 | created_ts u64 |
// segment_index u64 | reserved u64.
type header struct {
	version       uint16
	flags         uint16
	createdTs     uint64
	segmentIndex  uint64
	reserved      uint64
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.version)
	binary.LittleEndian.PutUint16(buf[6:8], h.flags)
	binary.LittleEndian.PutUint64(buf[8:16], h.createdTs)
	binary.LittleEndian.PutUint64(buf[16:24], h.segmentIndex)
	binary.LittleEndian.PutUint64(buf[24:32], h.reserved)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, coreerrors.New(coreerrors.Io, "segment header truncated")
	}
	if string(buf[0:4]) != magic {
		return header{}, coreerrors.New(coreerrors.Io, "bad segment magic")
	}
	return header{
		version:      binary.LittleEndian.Uint16(buf[4:6]),
		flags:        binary.LittleEndian.Uint16(buf[6:8]),
		createdTs:    binary.LittleEndian.Uint64(buf[8:16]),
		segmentIndex: binary.LittleEndian.Uint64(buf[16:24]),
		reserved:     binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

// segmentWriter is a single append-only file open for writing.
type segmentWriter struct {
	f     *os.File
	index uint64
	size  int64
}

func createSegment(path string, index uint64, createdTs uint64) (*segmentWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.Io, "create segment")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, coreerrors.Wrap(err, coreerrors.Io, "stat segment")
	}
	if info.Size() == 0 {
		hdr := encodeHeader(header{version: headerVersion, createdTs: createdTs, segmentIndex: index})
		if _, err := f.Write(hdr); err != nil {
			f.Close()
			return nil, coreerrors.Wrap(err, coreerrors.Io, "write segment header")
		}
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, coreerrors.Wrap(err, coreerrors.Io, "seek segment start")
		}
		hdrBuf := make([]byte, headerSize)
		if _, err := io.ReadFull(f, hdrBuf); err != nil {
			f.Close()
			return nil, coreerrors.Wrap(err, coreerrors.Io, "read segment header")
		}
		hdr, err := decodeHeader(hdrBuf)
		if err != nil {
			f.Close()
			return nil, err
		}
		if hdr.segmentIndex != index {
			f.Close()
			return nil, coreerrors.Newf(coreerrors.Io, "segment index mismatch: file has %d, expected %d", hdr.segmentIndex, index)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, coreerrors.Wrap(err, coreerrors.Io, "seek segment end")
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, coreerrors.Wrap(err, coreerrors.Io, "tell segment size")
	}
	return &segmentWriter{f: f, index: index, size: size}, nil
}

// frameSize is the on-disk size a payload of len(payload) bytes occupies
// once framed: length(4) + crc32(4) + payload.
func frameSize(payloadLen int) int64 { return int64(4 + 4 + payloadLen) }

// append writes one length-prefixed, CRC-framed record. It never fsyncs;
// durability is the manager's responsibility via Flush/rotation.
func (w *segmentWriter) append(payload []byte) error {
	var frame [8]byte
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	sum := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(frame[4:8], sum)

	if _, err := w.f.Write(frame[:]); err != nil {
		return coreerrors.Wrap(err, coreerrors.Io, "write record frame")
	}
	if _, err := w.f.Write(payload); err != nil {
		return coreerrors.Wrap(err, coreerrors.Io, "write record payload")
	}
	w.size += frameSize(len(payload))
	return nil
}

// flush fsyncs the underlying file descriptor.
func (w *segmentWriter) flush() error {
	if err := w.f.Sync(); err != nil {
		return coreerrors.Wrap(err, coreerrors.Io, "fsync segment")
	}
	return nil
}

func (w *segmentWriter) close() error {
	if err := w.f.Close(); err != nil {
		return coreerrors.Wrap(err, coreerrors.Io, "close segment")
	}
	return nil
}

// truncate shrinks the segment file to the given byte offset, used to
// recover from a torn trailing write on open.
func (w *segmentWriter) truncate(offset int64) error {
	if err := w.f.Truncate(offset); err != nil {
		return coreerrors.Wrap(err, coreerrors.Io, "truncate segment")
	}
	if _, err := w.f.Seek(offset, io.SeekStart); err != nil {
		return coreerrors.Wrap(err, coreerrors.Io, "seek after truncate")
	}
	w.size = offset
	return nil
}

// segmentReader streams records out of a sealed or active segment.
type segmentReader struct {
	f      *os.File
	r      *bufio.Reader
	offset int64 // byte offset of the next record to read, relative to file start
}

func openSegmentForRead(path string) (*segmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.Io, "open segment for read")
	}
	hdrBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hdrBuf); err != nil {
		f.Close()
		return nil, coreerrors.Wrap(err, coreerrors.Io, "read segment header")
	}
	if _, err := decodeHeader(hdrBuf); err != nil {
		f.Close()
		return nil, err
	}
	return &segmentReader{f: f, r: bufio.NewReader(f), offset: headerSize}, nil
}

// readNext reads one record. At clean EOF it returns (nil, io.EOF).
// A torn trailing record surfaces as EndOfSegment; a CRC mismatch
// surfaces as SegmentCorrupted.
func (r *segmentReader) readNext() ([]byte, error) {
	startOffset := r.offset
	lenBuf := make([]byte, 4)
	n, err := io.ReadFull(r.r, lenBuf)
	if err == io.EOF && n == 0 {
		return nil, io.EOF
	}
	if err != nil {
		return nil, coreerrors.NewEndOfSegment(startOffset)
	}
	r.offset += 4

	crcBuf := make([]byte, 4)
	if _, err := io.ReadFull(r.r, crcBuf); err != nil {
		return nil, coreerrors.NewEndOfSegment(startOffset)
	}
	r.offset += 4

	length := binary.LittleEndian.Uint32(lenBuf)
	expected := binary.LittleEndian.Uint32(crcBuf)

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, coreerrors.NewEndOfSegment(startOffset)
	}
	r.offset += int64(length)

	actual := crc32.ChecksumIEEE(payload)
	if actual != expected {
		return nil, coreerrors.NewSegmentCorrupted(startOffset, expected, actual)
	}
	return payload, nil
}

func (r *segmentReader) close() error { return r.f.Close() }
