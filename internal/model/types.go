package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"podshorts/internal/jobs"
)

// JobID identifies a backend job. The backend emits integer ids while
// some clients echo them back as strings, so both forms are accepted.
type JobID string

func (id JobID) String() string { return string(id) }

// MarshalJSON emits numeric ids as JSON numbers to match the backend.
func (id JobID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = JobID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = JobID(n.String())
	return nil
}

// Clip is a single generated short hosted on Cloudinary.
type Clip struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// ProcessingJob mirrors the backend's shorts job serializer.
type ProcessingJob struct {
	ID            JobID       `json:"id"`
	Username      string      `json:"username"`
	SourceURL     string      `json:"youtube_url"`
	Status        jobs.Status `json:"status"`
	CloudinaryURL *string     `json:"cloudinary_url"`
	Clips         []Clip      `json:"cloudinary_urls"`
	NumShorts     int         `json:"num_shorts,omitempty"`
	AddCaptions   *bool       `json:"add_captions,omitempty"`
	ErrorMessage  *string     `json:"error_message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// JobStatus satisfies jobs.Snapshot.
func (j ProcessingJob) JobStatus() jobs.Status { return jobs.ParseStatus(string(j.Status)) }

// ResultURLs returns the playable URL of every clip in order.
func (j ProcessingJob) ResultURLs() []string { return clipURLs(j.Clips) }

// DubbingJob mirrors the backend's language dubbing serializer.
type DubbingJob struct {
	ID             JobID       `json:"id"`
	Username       string      `json:"username"`
	SourceURL      string      `json:"video_url"`
	SourceLanguage string      `json:"source_language"`
	TargetLanguage string      `json:"target_language"`
	Voice          string      `json:"voice"`
	Status         jobs.Status `json:"status"`
	CloudinaryURL  *string     `json:"cloudinary_url"`
	Clips          []Clip      `json:"cloudinary_urls"`
	AddCaptions    *bool       `json:"add_captions,omitempty"`
	ErrorMessage   *string     `json:"error_message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// JobStatus satisfies jobs.Snapshot.
func (j DubbingJob) JobStatus() jobs.Status { return jobs.ParseStatus(string(j.Status)) }

// ResultURLs returns the playable URL of every dubbed video in order.
func (j DubbingJob) ResultURLs() []string { return clipURLs(j.Clips) }

func clipURLs(clips []Clip) []string {
	out := make([]string, 0, len(clips))
	for _, c := range clips {
		if c.URL != "" {
			out = append(out, c.URL)
		}
	}
	return out
}

// CreateShortsRequest is the job-creation payload for shorts.
type CreateShortsRequest struct {
	URL         string `json:"url"`
	Username    string `json:"username"`
	NumShorts   int    `json:"num_shorts"`
	AddCaptions bool   `json:"add_captions"`
}

// CreateDubbingRequest is the job-creation payload for translation and
// dubbing.
type CreateDubbingRequest struct {
	URL            string `json:"url"`
	Username       string `json:"username"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Voice          string `json:"voice"`
	AddCaptions    bool   `json:"add_captions"`
}

// ShortsAccepted is the backend's 202 response to a shorts request.
type ShortsAccepted struct {
	Message    string        `json:"message"`
	Processing ProcessingJob `json:"processing"`
}

// DubbingAccepted is the backend's 202 response to a dubbing request.
type DubbingAccepted struct {
	Message    string     `json:"message"`
	Processing DubbingJob `json:"processing"`
}

// InstagramUploadRequest asks the backend to post a clip as a Reel.
type InstagramUploadRequest struct {
	VideoPath string `json:"video_path"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Caption   string `json:"caption"`
}

// UploadSource tags where an uploaded media file came from.
type UploadSource string

const (
	UploadSourceYouTube UploadSource = "youtube"
	UploadSourceFile    UploadSource = "file"
)

// UploadRecord is a ledger entry for one successful media upload.
type UploadRecord struct {
	ID        string          `json:"id"`
	Username  string          `json:"username,omitempty"`
	Source    UploadSource    `json:"source"`
	SourceRef string          `json:"sourceRef"`
	SecureURL string          `json:"secureUrl"`
	PublicID  string          `json:"publicId"`
	Attempts  int             `json:"attempts"`
	Bytes     int64           `json:"bytes"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// InstagramUploadResult is the backend's response to a Reel upload.
type InstagramUploadResult struct {
	Message string `json:"message"`
	MediaID string `json:"media_id,omitempty"`
	Code    string `json:"code,omitempty"`
}
