package results

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"podshorts/internal/jobs"
	"podshorts/internal/model"
)

// Clip is a playable result with everything the UI shows next to it.
type Clip struct {
	Index     int    `json:"index"`
	URL       string `json:"url"`
	PublicID  string `json:"publicId"`
	PosterURL string `json:"posterUrl,omitempty"`
	FileName  string `json:"fileName"`
}

// View is the rendered result of a job.
type View struct {
	JobID  string      `json:"jobId"`
	Kind   string      `json:"kind"`
	Status jobs.Status `json:"status"`
	Source string      `json:"source"`
	Error  string      `json:"error,omitempty"`
	Clips  []Clip      `json:"clips"`
}

// Renderer builds result views. CloudName is used for poster thumbnails
// and WebBaseURL for follow-up links into the web app.
type Renderer struct {
	CloudName  string
	WebBaseURL string
}

// FromShorts renders a shorts job. Only completed jobs yield clips.
func (r Renderer) FromShorts(j model.ProcessingJob) View {
	return r.view("shorts", string(j.ID), j.JobStatus(), j.SourceURL, j.ErrorMessage, j.Clips, "short")
}

// FromDubbing renders a dubbing job. Only completed jobs yield clips.
func (r Renderer) FromDubbing(j model.DubbingJob) View {
	prefix := "dubbed"
	if j.TargetLanguage != "" {
		prefix = "dubbed-" + strings.ToLower(j.TargetLanguage)
	}
	return r.view("dubbing", string(j.ID), j.JobStatus(), j.SourceURL, j.ErrorMessage, j.Clips, prefix)
}

func (r Renderer) view(kind, id string, status jobs.Status, source string, errMsg *string, clips []model.Clip, prefix string) View {
	v := View{JobID: id, Kind: kind, Status: status, Source: source, Clips: []Clip{}}
	if errMsg != nil {
		v.Error = *errMsg
	}
	if status != jobs.StatusCompleted {
		return v
	}
	for _, c := range clips {
		if c.URL == "" {
			continue
		}
		n := len(v.Clips) + 1
		v.Clips = append(v.Clips, Clip{
			Index:     n,
			URL:       c.URL,
			PublicID:  c.PublicID,
			PosterURL: r.PosterURL(c.PublicID),
			FileName:  fileName(prefix, n, c.URL),
		})
	}
	return v
}

// PosterURL is a 700px wide frame of the clip with a play icon overlay.
func (r Renderer) PosterURL(publicID string) string {
	if r.CloudName == "" || publicID == "" {
		return ""
	}
	return fmt.Sprintf(
		"https://res.cloudinary.com/%s/video/upload/w_700/q_auto/l_play,w_100/fl_layer_apply,g_center/%s.jpg",
		r.CloudName, publicID,
	)
}

// TranslateURL links to the dubbing form prefilled with the clip.
func (r Renderer) TranslateURL(clipURL string) string {
	base := strings.TrimRight(r.WebBaseURL, "/")
	return base + "/translate?videoUrl=" + url.QueryEscape(clipURL)
}

// ShareLinks are the share targets offered for a clip.
type ShareLinks struct {
	Text     string `json:"text"`
	X        string `json:"x"`
	WhatsApp string `json:"whatsapp"`
	Facebook string `json:"facebook"`
}

const shareText = "Check out this short video!"

// Share builds the share links for a clip.
func Share(clipURL string) ShareLinks {
	return ShareLinks{
		Text:     shareText + " " + clipURL,
		X:        "https://twitter.com/intent/tweet?text=" + url.QueryEscape(shareText) + "&url=" + url.QueryEscape(clipURL),
		WhatsApp: "https://wa.me/?text=" + url.QueryEscape(shareText+" "+clipURL),
		Facebook: "https://www.facebook.com/sharer/sharer.php?u=" + url.QueryEscape(clipURL),
	}
}

func fileName(prefix string, n int, rawURL string) string {
	ext := ".mp4"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return fmt.Sprintf("%s-%d%s", prefix, n, ext)
}

// Downloader saves clips to disk.
type Downloader struct {
	HTTP *http.Client
}

// Download streams the clip into dir and returns the written path. A
// partially written file is removed on failure.
func (d Downloader) Download(ctx context.Context, c Clip, dir string) (string, error) {
	client := d.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", c.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %d", c.URL, resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := c.FileName
	if name == "" {
		name = fileName("short", c.Index, c.URL)
	}
	dest := filepath.Join(dir, filepath.Base(name))

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// DownloadAll fetches clips concurrently, at most parallel at a time, and
// returns the written paths in clip order. The first failure cancels the
// remaining downloads.
func (d Downloader) DownloadAll(ctx context.Context, clips []Clip, dir string, parallel int) ([]string, error) {
	if parallel <= 0 {
		parallel = 3
	}
	paths := make([]string, len(clips))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, c := range clips {
		i, c := i, c
		g.Go(func() error {
			p, err := d.Download(ctx, c, dir)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
