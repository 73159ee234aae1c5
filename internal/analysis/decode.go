package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strconv"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/asr"
)

// ErrInvalidAudio is returned for uploads that are empty or cannot be used
// for any part of the analysis.
var ErrInvalidAudio = errors.New("analysis: invalid audio")

// decodeClip turns an upload into mono float samples. WAV is decoded from
// its header; raw PCM reads rate and channels from the media type
// parameters (audio/l16;rate=16000;channels=1) and falls back to
// defaultRate mono. Other containers return audio.ErrUnsupportedFormat.
func decodeClip(data []byte, contentType string, defaultRate int) (*audio.Clip, error) {
	switch {
	case asr.IsWAV(contentType):
		return audio.DecodeWAV(bytes.NewReader(data))
	case asr.IsRawPCM(contentType):
		rate, channels, err := pcmParams(contentType, defaultRate)
		if err != nil {
			return nil, err
		}
		if len(data)%(2*channels) != 0 {
			return nil, fmt.Errorf("%w: PCM byte count %d is not a whole number of %d-channel samples", ErrInvalidAudio, len(data), channels)
		}
		pcm := data
		if channels == 2 {
			pcm = audio.StereoToMono(pcm)
		}
		return &audio.Clip{Samples: audio.PCM16ToFloat(pcm), SampleRate: rate}, nil
	default:
		return nil, fmt.Errorf("%w: %q", audio.ErrUnsupportedFormat, contentType)
	}
}

func pcmParams(contentType string, defaultRate int) (rate, channels int, err error) {
	rate, channels = defaultRate, 1
	_, params, perr := mime.ParseMediaType(contentType)
	if perr != nil {
		return rate, channels, nil
	}
	if v, ok := params["rate"]; ok {
		if rate, err = strconv.Atoi(v); err != nil || rate <= 0 {
			return 0, 0, fmt.Errorf("%w: bad rate parameter %q", ErrInvalidAudio, v)
		}
	}
	if v, ok := params["channels"]; ok {
		if channels, err = strconv.Atoi(v); err != nil || (channels != 1 && channels != 2) {
			return 0, 0, fmt.Errorf("%w: unsupported channel count %q", ErrInvalidAudio, v)
		}
	}
	return rate, channels, nil
}
