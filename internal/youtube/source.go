package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
)

// ErrNoAudio is returned when a video exposes no audio-only format.
var ErrNoAudio = errors.New("no audio format available")

// Audio is an open audio stream plus the metadata needed to label the
// upload. The caller must close Stream.
type Audio struct {
	Stream   io.ReadCloser
	VideoID  string
	Title    string
	Author   string
	Duration time.Duration
	MimeType string
	Size     int64
}

// AudioSource opens the audio track of a YouTube video.
type AudioSource interface {
	OpenAudio(ctx context.Context, rawURL string) (*Audio, error)
}

// Source implements AudioSource on top of kkdai/youtube.
type Source struct {
	client youtube.Client
}

func NewSource() *Source {
	return &Source{client: youtube.Client{}}
}

// OpenAudio resolves the video and opens its highest-bitrate audio-only
// format.
func (s *Source) OpenAudio(ctx context.Context, rawURL string) (*Audio, error) {
	id, err := ParseVideoID(rawURL)
	if err != nil {
		return nil, err
	}

	video, err := s.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("video info: %w", err)
	}

	format := highestAudio(video.Formats)
	if format == nil {
		return nil, ErrNoAudio
	}

	stream, size, err := s.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	return &Audio{
		Stream:   stream,
		VideoID:  video.ID,
		Title:    video.Title,
		Author:   video.Author,
		Duration: video.Duration,
		MimeType: format.MimeType,
		Size:     size,
	}, nil
}

func highestAudio(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}

// Filename names the upload after the video id, with an extension derived
// from the stream's mime type.
func (a *Audio) Filename() string {
	mt := strings.TrimSpace(strings.SplitN(a.MimeType, ";", 2)[0])
	switch mt {
	case "audio/webm":
		return a.VideoID + ".webm"
	case "audio/mp4":
		return a.VideoID + ".m4a"
	case "audio/mpeg":
		return a.VideoID + ".mp3"
	default:
		return a.VideoID
	}
}
