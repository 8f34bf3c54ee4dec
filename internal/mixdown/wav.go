package mixdown

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/AaronLay10/StoryEngine/internal/media"
)

const (
	HeaderSize     = 44
	BitsPerSample  = 16
	formatPCM      = 1
	fmtChunkSize   = 16
	bytesPerSample = BitsPerSample / 8
)

// Header is the subset of a RIFF/WAVE header needed to describe PCM data.
type Header struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// DataSize returns the PCM payload length for buf in bytes.
func DataSize(buf *media.Buffer) int {
	return buf.Frames() * buf.Channels() * bytesPerSample
}

// EncodeWAV writes buf as a 44-byte header followed by interleaved 16-bit
// little-endian samples. Samples are clamped to [-1, 1] and scaled by 32767.
func EncodeWAV(w io.Writer, buf *media.Buffer) error {
	if buf == nil || buf.Frames() == 0 {
		return ErrEmpty
	}
	channels := buf.Channels()
	blockAlign := channels * bytesPerSample
	dataSize := DataSize(buf)

	bw := bufio.NewWriter(w)
	hdr := []interface{}{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(fmtChunkSize),
		uint16(formatPCM),
		uint16(channels),
		uint32(buf.SampleRate),
		uint32(buf.SampleRate * blockAlign),
		uint16(blockAlign),
		uint16(BitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		uint32(dataSize),
	}
	for _, v := range hdr {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	var sample [2]byte
	frames := buf.Frames()
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(sample[:], uint16(ToPCM16(buf.Data[ch][i])))
			if _, err := bw.Write(sample[:]); err != nil {
				return fmt.Errorf("write samples: %w", err)
			}
		}
	}
	return bw.Flush()
}

// ToPCM16 clamps s to [-1, 1] and converts it with truncation toward zero.
func ToPCM16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

// ReadHeader parses a RIFF/WAVE header, skipping chunks other than "fmt "
// until the "data" chunk is reached. r is left positioned at the samples.
func ReadHeader(r io.Reader) (*Header, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if !bytes.Equal(riff[0:4], []byte("RIFF")) || !bytes.Equal(riff[8:12], []byte("WAVE")) {
		return nil, errors.New("not a RIFF/WAVE stream")
	}

	h := &Header{}
	haveFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < fmtChunkSize {
				return nil, fmt.Errorf("fmt chunk too small: %d", size)
			}
			var body [fmtChunkSize]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			// extension bytes and pad are skipped, never buffered
			rest := int64(size-fmtChunkSize) + int64(size&1)
			if _, err := io.CopyN(io.Discard, r, rest); err != nil {
				return nil, fmt.Errorf("skip fmt extension: %w", err)
			}
			h.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			h.Channels = binary.LittleEndian.Uint16(body[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			h.ByteRate = binary.LittleEndian.Uint32(body[8:12])
			h.BlockAlign = binary.LittleEndian.Uint16(body[12:14])
			h.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			h.DataSize = size
			return h, nil
		default:
			// chunks are word aligned
			skip := int64(size) + int64(size&1)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}
