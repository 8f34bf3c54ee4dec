// Package ebitenaudio plays and decodes clips through Ebitengine's audio
// stack. It needs an audio device and cgo on most platforms, so it lives
// apart from the headless session logic.
package ebitenaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"

	"github.com/AaronLay10/StoryEngine/internal/media"
)

// Decoder resamples WAV, Ogg Vorbis and MP3 clips to SampleRate and returns
// stereo planar buffers.
type Decoder struct {
	SampleRate int
}

func (d Decoder) DecodeAudio(name string, data []byte) (*media.Buffer, error) {
	var (
		stream io.Reader
		err    error
	)
	src := bytes.NewReader(data)
	switch container(name, data) {
	case "wav":
		stream, err = wav.DecodeWithSampleRate(d.SampleRate, src)
	case "ogg":
		stream, err = vorbis.DecodeWithSampleRate(d.SampleRate, src)
	case "mp3":
		stream, err = mp3.DecodeWithSampleRate(d.SampleRate, src)
	default:
		return nil, fmt.Errorf("%s: %w", name, media.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return planar(pcm, d.SampleRate), nil
}

// container picks a format by extension, then by magic bytes.
func container(name string, data []byte) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(name, "?", 2)[0]))
	switch ext {
	case ".wav", ".wave":
		return "wav"
	case ".ogg", ".oga":
		return "ogg"
	case ".mp3":
		return "mp3"
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// planar converts Ebitengine's 16-bit little-endian stereo stream into
// float32 channels.
func planar(pcm []byte, sampleRate int) *media.Buffer {
	frames := len(pcm) / 4
	buf := media.NewBuffer(sampleRate, 2, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		buf.Data[0][i] = float32(l) / 32768
		buf.Data[1][i] = float32(r) / 32768
	}
	return buf
}

// interleave converts a buffer into the 16-bit stereo stream a player reads.
// Mono buffers are duplicated into both channels.
func interleave(buf *media.Buffer) []byte {
	frames := buf.Frames()
	out := make([]byte, frames*4)
	if buf.Channels() == 0 {
		return out
	}
	left := buf.Data[0]
	right := left
	if buf.Channels() > 1 {
		right = buf.Data[1]
	}
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(out[i*4:], uint16(toInt16(left[i])))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(toInt16(right[i])))
	}
	return out
}

func toInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}
