package tts

import (
	"bytes"
	"fmt"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"

	"wondertales/internal/story/audio"
)

// linePause separates consecutive lines when they are voiced one by one.
const linePause = 250 * time.Millisecond

// decodeWAV turns a WAV file into a mono buffer at the payload rate.
func decodeWAV(data []byte) (*audio.Buffer, error) {
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != audio.SampleRate {
		s = beep.Resample(4, format.SampleRate, audio.SampleRate, streamer)
	}
	buf := audio.Collect(s, audio.SampleRate)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to read WAV samples: %w", err)
	}
	return buf, nil
}

// joinLines concatenates voiced lines with a short pause between them and
// encodes the result as a payload.
func joinLines(lines []*audio.Buffer) string {
	if len(lines) == 0 {
		return ""
	}
	parts := make([]*audio.Buffer, 0, 2*len(lines))
	for i, l := range lines {
		if i > 0 {
			parts = append(parts, audio.Silence(linePause, audio.SampleRate))
		}
		parts = append(parts, l)
	}
	return audio.Encode(audio.Concat(audio.SampleRate, parts...).Samples)
}
