package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"deviation-classifier-go/internal/apperr"
)

const multipartMemory = 32 << 20

// deviationForm is the request body shared by the classification endpoints.
// A nil pointer means the field was not sent.
type deviationForm struct {
	Local          string
	Description    *string
	Audio          []byte
	Classification map[string]any
}

type jsonBody struct {
	Local          string         `json:"local"`
	Description    *string        `json:"description"`
	Audio          *string        `json:"audio"`
	Classification map[string]any `json:"classification"`
}

// parseForm reads a JSON body (audio as base64, data: URLs accepted) or a
// multipart form (audio as a file part).
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (deviationForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return parseMultipart(r, maxBytes)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return deviationForm{}, bodyError(err, maxBytes)
		}
		return deviationForm{Local: r.PostForm.Get("local"), Description: formValue(r.PostForm, "description")}, nil
	default:
		return parseJSON(r, maxBytes)
	}
}

func parseJSON(r *http.Request, maxBytes int64) (deviationForm, error) {
	var body jsonBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return deviationForm{}, apperr.New(apperr.InvalidInput, "request body is empty", nil)
		}
		return deviationForm{}, bodyError(err, maxBytes)
	}
	f := deviationForm{Local: body.Local, Description: body.Description, Classification: body.Classification}
	if body.Audio != nil && strings.TrimSpace(*body.Audio) != "" {
		audio, err := base64.StdEncoding.DecodeString(stripDataURL(*body.Audio))
		if err != nil {
			return deviationForm{}, apperr.Wrap(apperr.InvalidInput, "invalid base64 audio", err, nil)
		}
		f.Audio = audio
	}
	return f, nil
}

func parseMultipart(r *http.Request, maxBytes int64) (deviationForm, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return deviationForm{}, bodyError(err, maxBytes)
	}
	f := deviationForm{
		Local:       r.FormValue("local"),
		Description: formValue(r.MultipartForm.Value, "description"),
	}
	file, _, err := r.FormFile("audio")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// no audio part
	case err != nil:
		return deviationForm{}, apperr.Wrap(apperr.InvalidInput, "could not read audio upload", err, nil)
	default:
		defer file.Close()
		audio, err := io.ReadAll(file)
		if err != nil {
			return deviationForm{}, apperr.Wrap(apperr.InvalidInput, "could not read audio upload", err, nil)
		}
		if audio == nil {
			audio = []byte{}
		}
		f.Audio = audio
	}
	return f, nil
}

func formValue(values map[string][]string, key string) *string {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return nil
	}
	return &v[0]
}

func bodyError(err error, maxBytes int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return apperr.New(apperr.InvalidInput,
			fmt.Sprintf("request body exceeds %d MB", maxBytes>>20), nil)
	}
	return apperr.Wrap(apperr.InvalidInput, "malformed request body", err, nil)
}

func stripDataURL(b64 string) string {
	s := strings.TrimSpace(b64)
	if i := strings.Index(s, ","); i != -1 && strings.HasPrefix(strings.ToLower(s[:i]), "data:") {
		return s[i+1:]
	}
	return s
}
