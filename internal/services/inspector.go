package services

import (
	"io"
	"os"

	"github.com/dhowden/tag"
)

// minAudioBytes is the smallest file accepted as audio. Anything shorter is a broken download.
const minAudioBytes = 1024

// FileInspector implements [AudioInspector] by reading the file's tags or its first audio frame.
type FileInspector struct{}

// IsAudio reports whether path holds a readable audio file.
func (FileInspector) IsAudio(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() || info.Size() < minAudioBytes {
		return false
	}

	if _, err := tag.ReadFrom(f); err == nil {
		return true
	}

	return startsWithMPEGFrame(f)
}

// startsWithMPEGFrame reports whether the first audio frame follows the ID3v2 header, if any.
func startsWithMPEGFrame(f io.ReadSeeker) bool {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}
	var header [10]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return false
	}

	offset := int64(0)
	if string(header[:3]) == "ID3" {
		// Tag size is four 7-bit bytes, excluding the 10 byte header.
		size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])
		offset = 10 + size
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return false
	}

	var head [2]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return false
	}
	return isMPEGFrameSync(head)
}

// isMPEGFrameSync reports whether b starts an MPEG audio frame (11 set sync bits).
func isMPEGFrameSync(b [2]byte) bool {
	return b[0] == 0xFF && b[1]&0xE0 == 0xE0
}
