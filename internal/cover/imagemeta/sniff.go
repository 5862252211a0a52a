// Package imagemeta extracts image dimensions from PNG and JPEG headers
// without decoding the image, and classifies covers by size and shape.
package imagemeta

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// maxSniffBytes bounds how much of a file is read to find its dimensions.
// JPEG start-of-frame markers normally appear well within this prefix; a
// file whose header lies beyond it is treated as unknown.
const maxSniffBytes = 256 * 1024

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Dimensions holds the pixel size read from an image header.
type Dimensions struct {
	Width  int
	Height int
}

// Sniff extracts dimensions from a PNG or JPEG byte prefix.
// It returns false for truncated, corrupt or unrecognized data.
func Sniff(data []byte) (Dimensions, bool) {
	if d, ok := sniffPNG(data); ok {
		return d, true
	}
	if d, ok := sniffJPEG(data); ok {
		return d, true
	}
	return Dimensions{}, false
}

// SniffFile reads a bounded prefix of the file at path and extracts its
// dimensions. Any I/O or parse failure yields false.
func SniffFile(path string) (Dimensions, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Dimensions{}, false
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxSniffBytes))
	if err != nil {
		return Dimensions{}, false
	}
	return Sniff(data)
}

// sniffPNG verifies the 8-byte signature and reads width/height from the
// fixed IHDR offsets (big-endian 32-bit integers at bytes 16 and 20).
func sniffPNG(data []byte) (Dimensions, bool) {
	if len(data) < 24 || !bytes.HasPrefix(data, pngSignature) {
		return Dimensions{}, false
	}
	if !bytes.Equal(data[12:16], []byte("IHDR")) {
		return Dimensions{}, false
	}

	width := binary.BigEndian.Uint32(data[16:20])
	height := binary.BigEndian.Uint32(data[20:24])
	if width == 0 || height == 0 {
		return Dimensions{}, false
	}
	return Dimensions{Width: int(width), Height: int(height)}, true
}

// sniffJPEG walks marker segments from the start-of-image marker until a
// start-of-frame marker is found, then reads big-endian height and width
// from fixed offsets within that segment. Running out of buffer before a
// SOF marker yields unknown.
func sniffJPEG(data []byte) (Dimensions, bool) {
	if len(data) < 4 || data[0] != 0xff || data[1] != 0xd8 {
		return Dimensions{}, false
	}

	pos := 2
	for pos+1 < len(data) {
		if data[pos] != 0xff {
			return Dimensions{}, false
		}
		// Skip fill bytes before the marker code.
		for pos+1 < len(data) && data[pos+1] == 0xff {
			pos++
		}
		if pos+1 >= len(data) {
			return Dimensions{}, false
		}
		marker := data[pos+1]
		pos += 2

		switch {
		case marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7):
			// TEM and restart markers carry no payload.
			continue
		case marker == 0xd9:
			// End of image before any frame header.
			return Dimensions{}, false
		}

		if pos+2 > len(data) {
			return Dimensions{}, false
		}
		segLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		if segLen < 2 {
			return Dimensions{}, false
		}

		if isSOFMarker(marker) {
			// Segment layout: length(2) precision(1) height(2) width(2).
			if pos+7 > len(data) {
				return Dimensions{}, false
			}
			height := binary.BigEndian.Uint16(data[pos+3 : pos+5])
			width := binary.BigEndian.Uint16(data[pos+5 : pos+7])
			if width == 0 || height == 0 {
				return Dimensions{}, false
			}
			return Dimensions{Width: int(width), Height: int(height)}, true
		}

		pos += segLen
	}
	return Dimensions{}, false
}

// isSOFMarker reports whether the marker opens a start-of-frame segment.
// 0xC4 (DHT), 0xC8 (JPG extension) and 0xCC (DAC) share the SOF range but
// are not frame headers.
func isSOFMarker(marker byte) bool {
	if marker < 0xc0 || marker > 0xcf {
		return false
	}
	switch marker {
	case 0xc4, 0xc8, 0xcc:
		return false
	}
	return true
}
