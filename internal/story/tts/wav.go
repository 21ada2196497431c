package tts

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavPCM is the payload of a 16-bit PCM WAV file.
type wavPCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// parseWAV walks the RIFF chunks and returns the raw data chunk untouched.
func parseWAV(b []byte) (*wavPCM, error) {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("not a RIFF/WAVE payload")
	}

	out := &wavPCM{}
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		// espeak writes 0x7fffffff sizes when streaming to stdout.
		if end > len(b) || end < body {
			end = len(b)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(b[body : body+2])
			bits := binary.LittleEndian.Uint16(b[body+14 : body+16])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("unsupported wav encoding %d/%d-bit", format, bits)
			}
			out.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			out.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
		case "data":
			if out.SampleRate == 0 {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			out.Data = b[body:end]
			return out, nil
		}
		pos = end + size%2
	}
	return nil, fmt.Errorf("wav has no data chunk")
}

// monoLE16 downmixes interleaved 16-bit frames to one channel.
func monoLE16(data []byte, channels int) []byte {
	if channels <= 1 {
		return data
	}
	frame := 2 * channels
	out := make([]byte, 0, len(data)/channels)
	for i := 0; i+frame <= len(data); i += frame {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(int16(binary.LittleEndian.Uint16(data[i+2*c:])))
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(sum/channels)))
	}
	return out
}
