package playback

import (
	"bytes"
	"io"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"familynest/internal/audio/pcm"
)

// DecodeMedia decodes uploaded or recorded audio (mp3 or wav) into samples.
func DecodeMedia(media []byte, mimeType string) (*pcm.Buffer, error) {
	if len(media) == 0 {
		return nil, &pcm.DecodeError{Reason: "empty media"}
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch sniffContainer(media, mimeType) {
	case "mp3":
		streamer, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(media)))
	case "wav":
		streamer, format, err = wav.Decode(bytes.NewReader(media))
	default:
		return nil, &pcm.DecodeError{Reason: "unsupported media type " + mimeType}
	}
	if err != nil {
		return nil, &pcm.DecodeError{Reason: "decode " + mimeType, Err: err}
	}
	defer streamer.Close()

	return pcm.FromStreamer(streamer, format)
}

func sniffContainer(media []byte, mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "mpeg"), strings.Contains(mt, "mp3"):
		return "mp3"
	case strings.Contains(mt, "wav"), strings.Contains(mt, "wave"):
		return "wav"
	}

	switch {
	case bytes.HasPrefix(media, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(media, []byte("ID3")), len(media) > 1 && media[0] == 0xFF && media[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}
