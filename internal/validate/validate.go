package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"podshorts/internal/model"
	"podshorts/internal/youtube"
)

// Supported dubbing options, in the order the form lists them.
var (
	TargetLanguages = []string{
		"Hindi", "Spanish", "French", "German", "Japanese", "Korean",
		"Chinese", "Arabic", "Russian", "Portuguese", "Italian",
	}
	Voices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
)

const (
	DefaultSourceLanguage = "English"
	DefaultNumShorts      = 1
	MaxNumShorts          = 5
	MaxUsernameLen        = 100
	MaxCaptionLen         = 2200
)

// FieldErrors maps a field's JSON name to the first message describing
// why it was rejected.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	return "validation failed: " + strings.Join(f.Lines(), "; ")
}

// Lines renders each failure as "field: message", sorted by field.
func (f FieldErrors) Lines() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+": "+f[k])
	}
	return out
}

// AsFieldErrors unwraps err into FieldErrors when it is one.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("youtube", func(fl validator.FieldLevel) bool {
		return youtube.LooksLikeYouTube(fl.Field().String())
	})
	_ = v.RegisterValidation("videoid", func(fl validator.FieldLevel) bool {
		return youtube.IsValidURL(fl.Field().String())
	})
	return v
}

type messages map[string]string

// check runs the struct validator and converts failures into FieldErrors
// using msgs, keyed by "field.tag".
func check(form any, msgs messages) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := out[field]; seen {
			continue
		}
		if msg, ok := msgs[field+"."+fe.Tag()]; ok {
			out[field] = msg
			continue
		}
		out[field] = fmt.Sprintf("%s is invalid", field)
	}
	return out
}

func trim(s *string) { *s = strings.TrimSpace(*s) }

// ShortsForm is the "generate shorts" submission.
type ShortsForm struct {
	URL         string `json:"url" validate:"required,url,youtube"`
	Username    string `json:"username" validate:"required,max=100"`
	NumShorts   *int   `json:"num_shorts" validate:"omitempty,min=1,max=5"`
	AddCaptions *bool  `json:"add_captions"`
}

var shortsMessages = messages{
	"url.required":      "YouTube URL is required",
	"url.url":           "Please enter a valid URL",
	"url.youtube":       "Please enter a valid YouTube URL",
	"username.required": "Username is required",
	"username.max":      "Username must be at most 100 characters",
	"num_shorts.min":    "Number of shorts must be between 1 and 5",
	"num_shorts.max":    "Number of shorts must be between 1 and 5",
}

// Shorts validates f and returns the backend request with defaults applied.
func Shorts(f ShortsForm) (model.CreateShortsRequest, error) {
	trim(&f.URL)
	trim(&f.Username)
	if err := check(f, shortsMessages); err != nil {
		return model.CreateShortsRequest{}, err
	}
	req := model.CreateShortsRequest{
		URL:         f.URL,
		Username:    f.Username,
		NumShorts:   DefaultNumShorts,
		AddCaptions: true,
	}
	if f.NumShorts != nil {
		req.NumShorts = *f.NumShorts
	}
	if f.AddCaptions != nil {
		req.AddCaptions = *f.AddCaptions
	}
	return req, nil
}

// DubbingForm is the "translate video" submission.
type DubbingForm struct {
	URL            string `json:"url" validate:"required,url"`
	Username       string `json:"username" validate:"required,max=100"`
	SourceLanguage string `json:"source_language" validate:"omitempty,eq=English"`
	TargetLanguage string `json:"target_language" validate:"required,oneof=Hindi Spanish French German Japanese Korean Chinese Arabic Russian Portuguese Italian"`
	Voice          string `json:"voice" validate:"required,oneof=alloy echo fable onyx nova shimmer"`
	AddCaptions    *bool  `json:"add_captions"`
}

var dubbingMessages = messages{
	"url.required":             "Video URL is required",
	"url.url":                  "Please enter a valid URL",
	"username.required":        "Username is required",
	"username.max":             "Username must be at most 100 characters",
	"source_language.eq":       "Only English is supported as the source language",
	"target_language.required": "Target language is required",
	"target_language.oneof":    "Target language is not supported",
	"voice.required":           "Voice is required",
	"voice.oneof":              "Voice is not supported",
}

// Dubbing validates f and returns the backend request with defaults applied.
func Dubbing(f DubbingForm) (model.CreateDubbingRequest, error) {
	trim(&f.URL)
	trim(&f.Username)
	trim(&f.SourceLanguage)
	trim(&f.TargetLanguage)
	trim(&f.Voice)
	if err := check(f, dubbingMessages); err != nil {
		return model.CreateDubbingRequest{}, err
	}
	req := model.CreateDubbingRequest{
		URL:            f.URL,
		Username:       f.Username,
		SourceLanguage: DefaultSourceLanguage,
		TargetLanguage: f.TargetLanguage,
		Voice:          f.Voice,
		AddCaptions:    true,
	}
	if f.AddCaptions != nil {
		req.AddCaptions = *f.AddCaptions
	}
	return req, nil
}

// InstagramForm is the "post to Instagram" submission.
type InstagramForm struct {
	VideoPath string `json:"video_path" validate:"required,url"`
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Caption   string `json:"caption" validate:"max=2200"`
}

var instagramMessages = messages{
	"video_path.required": "Video URL is required",
	"video_path.url":      "Please enter a valid URL",
	"username.required":   "Instagram username is required",
	"password.required":   "Instagram password is required",
	"caption.max":         "Caption must be at most 2200 characters",
}

// Instagram validates f and returns the backend request.
func Instagram(f InstagramForm) (model.InstagramUploadRequest, error) {
	trim(&f.VideoPath)
	trim(&f.Username)
	if err := check(f, instagramMessages); err != nil {
		return model.InstagramUploadRequest{}, err
	}
	return model.InstagramUploadRequest{
		VideoPath: f.VideoPath,
		Username:  f.Username,
		Password:  f.Password,
		Caption:   f.Caption,
	}, nil
}

// YouTubeUploadForm asks the upload proxy to republish a video's audio.
type YouTubeUploadForm struct {
	YouTubeURL string `json:"youtubeUrl" validate:"required,videoid"`
	Username   string `json:"username" validate:"max=100"`
}

var youtubeUploadMessages = messages{
	"youtubeUrl.required": "YouTube URL is required",
	"youtubeUrl.videoid":  "Invalid YouTube URL",
	"username.max":        "Username must be at most 100 characters",
}

// YouTubeUpload validates f. The URL must carry a parseable video id.
func YouTubeUpload(f YouTubeUploadForm) (YouTubeUploadForm, error) {
	trim(&f.YouTubeURL)
	trim(&f.Username)
	if err := check(f, youtubeUploadMessages); err != nil {
		return YouTubeUploadForm{}, err
	}
	return f, nil
}
