package testgen

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// GenerateMP3 creates a minimal MP3 file containing an ID3v2 tag followed by
// a single MPEG frame header. The content is enough for type sniffers to
// identify it as audio/mpeg. Returns the full path to the created file.
func GenerateMP3(t *testing.T, dir, filename string) string {
	t.Helper()

	var buf bytes.Buffer

	// ID3v2.3 tag header: identifier, version, flags, syncsafe size.
	buf.WriteString("ID3")
	buf.Write([]byte{0x03, 0x00, 0x00})
	buf.Write([]byte{0x00, 0x00, 0x00, 0x20})
	buf.Write(make([]byte, 0x20))

	// MPEG-1 Layer III frame sync so players accept the stream.
	buf.Write([]byte{0xFF, 0xFB, 0x90, 0x00})
	buf.Write(make([]byte, 128))

	return WriteFile(t, dir, filename, buf.Bytes())
}

// GenerateFLAC creates a minimal FLAC file with the stream marker and an
// empty STREAMINFO metadata block. Returns the full path to the created file.
func GenerateFLAC(t *testing.T, dir, filename string) string {
	t.Helper()

	var buf bytes.Buffer

	buf.WriteString("fLaC")
	// Last-metadata-block flag set, block type STREAMINFO, length 34.
	buf.Write([]byte{0x80, 0x00, 0x00, 0x22})
	buf.Write(make([]byte, 34))

	return WriteFile(t, dir, filename, buf.Bytes())
}

// GenerateMP4 creates a minimal MP4 file consisting of an ftyp box with the
// isom major brand. Returns the full path to the created file.
func GenerateMP4(t *testing.T, dir, filename string) string {
	t.Helper()

	var buf bytes.Buffer

	brands := []byte("isomiso2avc1mp41")
	size := make([]byte, 4)
	// Box size covers the size and type fields, major brand, minor version,
	// and the compatible brand list.
	binary.BigEndian.PutUint32(size, uint32(8+4+4+len(brands)))

	buf.Write(size)
	buf.WriteString("ftyp")
	buf.WriteString("isom")
	buf.Write([]byte{0x00, 0x00, 0x02, 0x00})
	buf.Write(brands)

	return WriteFile(t, dir, filename, buf.Bytes())
}
