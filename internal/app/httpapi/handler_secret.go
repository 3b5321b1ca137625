package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/crypto"
	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/metrics"
)

type secretRequest struct {
	Team       string               `json:"team"`
	Name       string               `json:"name"`
	SecretType domainsecret.Type    `json:"secret_type"`
	Spec       domainsecret.Spec    `json:"spec"`
}

// handleCreateSecret encrypts the submitted spec under the current key
// version and stores it. The plaintext spec never leaves this handler.
func (h *handler) handleCreateSecret(encryption *crypto.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req secretRequest
		if err := decodeJSON(r.Body, &req); err != nil {
			writeError(w, apperrors.NewValidationError("malformed request body", ""))
			return
		}
		if !h.requireScope(w, r, "secret", "write", req.Team) {
			return
		}
		req.Spec.Type = req.SecretType

		plaintext, err := json.Marshal(req.Spec)
		if err != nil {
			writeError(w, apperrors.NewValidationError("spec is not serializable", "spec"))
			return
		}
		ciphertext, nonce, keyVersion, err := encryption.Encrypt(plaintext)
		if err != nil {
			writeError(w, err)
			return
		}

		s := domainsecret.Secret{
			Team:                   req.Team,
			Name:                   req.Name,
			SecretType:             req.SecretType,
			Source:                 domainsecret.SourceDatabase,
			ConfigurationEncrypted: ciphertext,
			Nonce:                  nonce,
			EncryptionKeyID:        keyVersion,
		}
		created, err := h.store.CreateSecret(r.Context(), s)
		if err != nil {
			writeError(w, err)
			return
		}
		_ = h.auditSvc.RecordSecretsEvent(r.Context(), actorFromRequest(r), created.ID, created.Name, "secrets.create", map[string]interface{}{
			"backend": string(created.Source),
		})
		writeJSON(w, http.StatusCreated, created.ToMetadata())
	}
}

func (h *handler) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	teams, ok := h.teamFilter(w, r, "secret", "read")
	if !ok {
		return
	}
	secrets, err := h.store.ListSecretsByTeams(r.Context(), teams, pagination(r))
	if err != nil {
		writeError(w, err)
		return
	}
	metas := make([]domainsecret.Metadata, 0, len(secrets))
	for _, s := range secrets {
		metas = append(metas, s.ToMetadata())
	}
	writeJSON(w, http.StatusOK, struct {
		Secrets []domainsecret.Metadata `json:"secrets"`
	}{metas})
}

func (h *handler) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := h.store.GetSecret(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.NewNotFoundError("secret", id))
		return
	}
	if !h.requireScope(w, r, "secret", "read", s.Team) {
		return
	}
	writeJSON(w, http.StatusOK, s.ToMetadata())
}

// handleResolveSecret resolves a secret's live value through the backend
// its Source names. It is a privileged operation: the decrypted payload
// reaches the response body, so callers must hold the resolve scope in
// addition to read.
func (h *handler) handleResolveSecret(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := h.store.GetSecret(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.NewNotFoundError("secret", id))
		return
	}
	if !h.requireScope(w, r, "secret", "resolve", s.Team) {
		return
	}

	spec, err := h.secrets.Resolve(r.Context(), actorFromRequest(r), s)
	metrics.RecordSecretFetch(string(s.Source), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}
