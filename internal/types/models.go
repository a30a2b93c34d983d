package types

import (
	"strings"

	"deviation-classifier-go/internal/apperr"
)

// ClassificationRequest is one incoming deviation report. A nil Description
// or Audio means the field was not provided at all.
type ClassificationRequest struct {
	Location    string
	Description *string
	Audio       []byte
}

// NewClassificationRequest enforces that a location is given and that at
// least one of description or audio is present.
func NewClassificationRequest(location string, description *string, audio []byte) (ClassificationRequest, error) {
	if strings.TrimSpace(location) == "" {
		return ClassificationRequest{}, apperr.New(apperr.InvalidInput, "field 'local' is required", nil)
	}
	if description == nil && audio == nil {
		return ClassificationRequest{}, apperr.New(apperr.InvalidInput,
			"at least one of 'description' or 'audio' must be provided",
			map[string]any{"local": location})
	}
	return ClassificationRequest{Location: location, Description: description, Audio: audio}, nil
}

func (r ClassificationRequest) HasDescription() bool { return r.Description != nil }

func (r ClassificationRequest) HasAudio() bool { return r.Audio != nil }

// DescriptionText returns the description, or "" when absent.
func (r ClassificationRequest) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}
