package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// boolParam reads a boolean from the query string or, for POST, the form.
// Missing values are false.
func boolParam(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	switch strings.ToLower(raw) {
	case "":
		return false, nil
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", repository.ErrInvalidInput, name)
	}
	return v, nil
}

// intParam reads an integer parameter. Missing values yield def.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", repository.ErrInvalidInput, name)
	}
	return v, nil
}

// requiredParam reads a non-blank string parameter.
func requiredParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", repository.ErrInvalidInput, name)
	}
	return v, nil
}

// linkParams reads the url and videoid pair shared by the metadata routes.
func linkParams(r *http.Request) (string, bool, error) {
	link, err := requiredParam(r, "url")
	if err != nil {
		return "", false, err
	}
	videoID, err := boolParam(r, "videoid")
	if err != nil {
		return "", false, err
	}
	return link, videoID, nil
}
