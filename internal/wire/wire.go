package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1

	entryHeader = 4 + 1 + 1 + 8 + 8 + 4 + 4
)

var (
	ErrCorrupt = errors.New("texpool: corrupt resident entry")
	magic4     = [...]byte{'T', 'X', 'P', 'L'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | gen(u64 be) | storedAt(i64 be, unix nanos) | crc32(u32 be) | vlen(u32 be) | payload(vlen)
//
// gen is the residency generation observed before the fetch; a reader that sees a
// newer generation treats the entry as stale.
//
// The checksum is IEEE CRC-32 over payload. Shared stores (redis) can hold bytes written
// by another process version, so a payload is never trusted without it.
func EncodeEntry(gen uint64, storedAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(entryHeader + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(storedAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], crc32.ChecksumIEEE(payload))
	buf.Write(u4[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeEntry validates b and returns its generation, store time and a payload slice
// aliasing b.
func DecodeEntry(b []byte) (gen uint64, storedAt time.Time, payload []byte, err error) {
	if len(b) < entryHeader || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, time.Time{}, nil, ErrCorrupt
	}

	off := 6

	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	sum := binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact: trailing bytes are corruption
		return 0, time.Time{}, nil, ErrCorrupt
	}

	payload = b[off : off+vlen]
	if crc32.ChecksumIEEE(payload) != sum {
		return 0, time.Time{}, nil, ErrCorrupt
	}
	return gen, time.Unix(0, nanos), payload, nil
}
