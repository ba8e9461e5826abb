package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strings"

	"github.com/straja-ai/piiscan/internal/extract"
	"github.com/straja-ai/piiscan/internal/ingest"
	"github.com/straja-ai/piiscan/internal/redact"
)

const multipartMemory = 8 << 20

var errMalformed = errors.New("malformed request")

type errorBody struct {
	Error string `json:"error"`
}

type extractRequest struct {
	InputText         string          `json:"input_text"`
	InputFilePath     string          `json:"input_file_path"`
	EntitiesToExtract json.RawMessage `json:"entities_to_extract"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.opts.Version})
}

type categoryInfo struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Variant string   `json:"variant"`
	Aliases []string `json:"aliases,omitempty"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	reg := s.pipeline.Registry()
	aliases := make(map[string][]string)
	for alias, name := range reg.Aliases() {
		aliases[name] = append(aliases[name], alias)
	}
	out := make([]categoryInfo, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		b, _ := reg.Resolve(name)
		out = append(out, categoryInfo{
			Name:    b.Name,
			Label:   b.Label,
			Variant: b.Variant(),
			Aliases: aliases[name],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": out,
		"formats":    ingest.Formats(),
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	src, categories, err := parseExtractRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.pipeline.ExtractSource(r.Context(), src, categories)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := redact.String(err.Error())
	ev := s.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Str("request_id", RequestIDFromContext(r.Context())).
		Int("status", status).
		Str("error", msg).
		Msg("extraction request failed")
	writeError(w, status, msg)
}

// parseExtractRequest accepts a JSON body, a urlencoded form, or a multipart
// form carrying the document as input_file.
func parseExtractRequest(r *http.Request) (extract.Source, []string, error) {
	var src extract.Source
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return src, nil, fmt.Errorf("%w: bad content type", errMalformed)
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json":
		var body extractRequest
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return src, nil, err
			}
			if errors.Is(err, io.EOF) {
				return src, nil, extract.ErrNoInput
			}
			return src, nil, fmt.Errorf("%w: invalid JSON body", errMalformed)
		}
		categories, err := parseCategoriesJSON(body.EntitiesToExtract)
		if err != nil {
			return src, nil, err
		}
		src.Text = body.InputText
		src.Path = body.InputFilePath
		return src, categories, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return src, nil, formError(err)
		}

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return src, nil, formError(err)
		}
		upload, err := readUpload(r)
		if err != nil {
			return src, nil, err
		}
		src.Upload = upload

	default:
		return src, nil, fmt.Errorf("%w: unsupported content type %q", errMalformed, mediaType)
	}

	categories, err := parseCategoryList(r.PostFormValue("entities_to_extract"))
	if err != nil {
		return src, nil, err
	}
	src.Text = r.PostFormValue("input_text")
	src.Path = r.PostFormValue("input_file_path")
	return src, categories, nil
}

func readUpload(r *http.Request) (*extract.Upload, error) {
	file, header, err := r.FormFile("input_file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, formError(err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, formError(err)
	}
	return &extract.Upload{Name: header.Filename, Data: data}, nil
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		return &http.MaxBytesError{}
	}
	return fmt.Errorf("%w: %v", errMalformed, err)
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), errors.Is(err, ingest.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrPathNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, extract.ErrNoInput),
		errors.Is(err, extract.ErrUnknownCategory),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, errMalformed),
		errors.Is(err, errBadCategory),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
