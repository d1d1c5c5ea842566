package http

import (
	"podshorts/internal/model"
	"podshorts/internal/results"
)

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// YouTubeUploadResponse is returned by POST /api/upload-youtube.
type YouTubeUploadResponse struct {
	CloudinaryURL string `json:"cloudinaryUrl"`
	PublicID      string `json:"publicId"`
	Attempts      int    `json:"attempts"`
}

// FileUploadResponse is returned by POST /api/upload.
type FileUploadResponse struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// ResultClip is a rendered clip with its follow-up links.
type ResultClip struct {
	results.Clip
	TranslateURL string             `json:"translateUrl"`
	Share        results.ShareLinks `json:"share"`
}

// ResultsResponse is returned by the results endpoints.
type ResultsResponse struct {
	JobID  string       `json:"jobId"`
	Kind   string       `json:"kind"`
	Status string       `json:"status"`
	Source string       `json:"source"`
	Error  string       `json:"error,omitempty"`
	Clips  []ResultClip `json:"clips"`
}

// UploadsResponse lists ledger entries for a user.
type UploadsResponse struct {
	Success bool                 `json:"success"`
	Uploads []model.UploadRecord `json:"uploads"`
}

func toResultsResponse(r results.Renderer, v results.View) ResultsResponse {
	out := ResultsResponse{
		JobID:  v.JobID,
		Kind:   v.Kind,
		Status: string(v.Status),
		Source: v.Source,
		Error:  v.Error,
		Clips:  make([]ResultClip, 0, len(v.Clips)),
	}
	for _, c := range v.Clips {
		out.Clips = append(out.Clips, ResultClip{
			Clip:         c,
			TranslateURL: r.TranslateURL(c.URL),
			Share:        results.Share(c.URL),
		})
	}
	return out
}
