package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"duckflow/internal/domain"
	"duckflow/internal/middleware"
)

// CredentialStore persists named storage credentials.
type CredentialStore interface {
	Upsert(ctx context.Context, cred *domain.StorageCredential) (*domain.StorageCredential, error)
	GetByName(ctx context.Context, name string) (*domain.StorageCredential, error)
	List(ctx context.Context, page domain.PageRequest) ([]domain.StorageCredential, int64, error)
	Delete(ctx context.Context, name string) error
}

type credentialRequest struct {
	CredentialType   string `json:"credential_type"`
	KeyID            string `json:"key_id"`
	Secret           string `json:"secret"`
	SessionToken     string `json:"session_token"`
	Endpoint         string `json:"endpoint"`
	Region           string `json:"region"`
	URLStyle         string `json:"url_style"`
	AzureAccountName string `json:"azure_account_name"`
	AzureAccountKey  string `json:"azure_account_key"`
	GCSKeyFilePath   string `json:"gcs_key_file_path"`
}

// credentialResponse never carries secret material.
type credentialResponse struct {
	Name             string    `json:"name"`
	CredentialType   string    `json:"credential_type"`
	KeyID            string    `json:"key_id,omitempty"`
	HasSecret        bool      `json:"has_secret"`
	HasSessionToken  bool      `json:"has_session_token"`
	Endpoint         string    `json:"endpoint,omitempty"`
	Region           string    `json:"region,omitempty"`
	URLStyle         string    `json:"url_style,omitempty"`
	AzureAccountName string    `json:"azure_account_name,omitempty"`
	GCSKeyFilePath   string    `json:"gcs_key_file_path,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func credentialToAPI(c domain.StorageCredential) credentialResponse {
	return credentialResponse{
		Name:             c.Name,
		CredentialType:   string(c.CredentialType),
		KeyID:            c.KeyID,
		HasSecret:        c.Secret != "" || c.AzureAccountKey != "",
		HasSessionToken:  c.SessionToken != "",
		Endpoint:         c.Endpoint,
		Region:           c.Region,
		URLStyle:         c.URLStyle,
		AzureAccountName: c.AzureAccountName,
		GCSKeyFilePath:   c.GCSKeyFilePath,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func (h *handler) listCredentials(w http.ResponseWriter, r *http.Request) {
	var page domain.PageRequest
	if s := r.URL.Query().Get("max_results"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "max_results must be a non-negative integer")
			return
		}
		page.MaxResults = n
	}
	page.PageToken = r.URL.Query().Get("page_token")

	creds, total, err := h.credentials.List(r.Context(), page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]credentialResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, credentialToAPI(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"credentials":     out,
		"next_page_token": domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

func (h *handler) getCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credentials.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialToAPI(*cred))
}

func (h *handler) putCredential(w http.ResponseWriter, r *http.Request) {
	var body credentialRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cred := &domain.StorageCredential{
		Name:             chi.URLParam(r, "name"),
		CredentialType:   domain.CredentialType(body.CredentialType),
		KeyID:            body.KeyID,
		Secret:           body.Secret,
		SessionToken:     body.SessionToken,
		Endpoint:         body.Endpoint,
		Region:           body.Region,
		URLStyle:         body.URLStyle,
		AzureAccountName: body.AzureAccountName,
		AzureAccountKey:  body.AzureAccountKey,
		GCSKeyFilePath:   body.GCSKeyFilePath,
	}
	if err := cred.Validate(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	saved, err := h.credentials.Upsert(r.Context(), cred)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "storage credential saved",
		"credential", saved.Name, "principal", middleware.PrincipalFromContext(r.Context()))
	writeJSON(w, http.StatusOK, credentialToAPI(*saved))
}

func (h *handler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.credentials.Delete(r.Context(), name); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "storage credential deleted",
		"credential", name, "principal", middleware.PrincipalFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
