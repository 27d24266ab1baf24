package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lu0b0/2925-mail-2api/internal/lookup"
	"github.com/lu0b0/2925-mail-2api/internal/observability"
	"github.com/lu0b0/2925-mail-2api/internal/platform/mail2925"
)

// mailRequest is the POST /mails body. Time is in seconds and defaults to 30
// when omitted.
type mailRequest struct {
	Email       string `json:"email"`
	Time        *int   `json:"time"`
	Subject     string `json:"subject"`
	BodyContent string `json:"bodyContent"`
}

type mailResponse struct {
	Code  int    `json:"code"`
	Email string `json:"email"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

const (
	codeFound   = 200
	codeMissing = 0
)

func (s *Server) handleMails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req mailRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return
	}
	criteria, err := req.criteria()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	res, err := s.finder.Find(ctx, criteria)
	switch {
	case errors.Is(err, mail2925.ErrAuth):
		s.log.Warn(ctx, "lookup failed: provider auth expired", observability.AttrErr(err))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "cookie expired, unable to obtain a new token"})
		return
	case err != nil:
		s.log.Error(ctx, "lookup failed", observability.AttrErr(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Detail: "mail provider request failed"})
		return
	}

	if !res.Found {
		writeJSON(w, http.StatusOK, mailResponse{Code: codeMissing, Email: ""})
		return
	}
	writeJSON(w, http.StatusOK, mailResponse{Code: codeFound, Email: res.Text})
}

func (req mailRequest) criteria() (lookup.Criteria, error) {
	if strings.TrimSpace(req.Email) == "" {
		return lookup.Criteria{}, errors.New("email is required")
	}
	maxAge := lookup.DefaultMaxAge
	if req.Time != nil {
		if *req.Time < 0 {
			return lookup.Criteria{}, errors.New("time must not be negative")
		}
		maxAge = lookup.MaxAgeSeconds(int64(*req.Time))
	}
	return lookup.Criteria{
		Email:       req.Email,
		Subject:     req.Subject,
		BodyContent: req.BodyContent,
		MaxAge:      maxAge,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
