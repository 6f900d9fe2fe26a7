package employee

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/entity"
)

const maxBodyBytes = 1 << 20

// Handler exposes the employee service over HTTP. Routes under /employees/{id}
// expect verified access token claims in the request context.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

type employmentRequest struct {
	OrganizationName string     `json:"organizationName"`
	Department       string     `json:"department"`
	Position         string     `json:"position"`
	JoinDate         *time.Time `json:"joinDate"`
}

func (e employmentRequest) entity() entity.Employment {
	return entity.Employment{
		OrganizationName: e.OrganizationName,
		Department:       e.Department,
		Position:         e.Position,
		JoinDate:         e.JoinDate,
	}
}

// CreateRequest is the registration payload.
type CreateRequest struct {
	EmailAddress string            `json:"emailAddress"`
	FullName     string            `json:"fullName"`
	Secret       string            `json:"secret"`
	Employment   employmentRequest `json:"employment"`
	AvatarURL    string            `json:"avatarUrl"`
	IsActive     *bool             `json:"isActive"`
}

// PatchRequest carries only the fields to change.
type PatchRequest struct {
	EmailAddress *string            `json:"emailAddress"`
	FullName     *string            `json:"fullName"`
	Secret       *string            `json:"secret"`
	Employment   *employmentRequest `json:"employment"`
	AvatarURL    *string            `json:"avatarUrl"`
	IsActive     *bool              `json:"isActive"`
}

type relationRequest struct {
	TargetID string `json:"targetId"`
}

type messageRequest struct {
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
}

// LoginRequest login payload.
type LoginRequest struct {
	EmailAddress string `json:"emailAddress"`
	Secret       string `json:"secret"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Employee *entity.Employee `json:"employee"`
	Tokens   *auth.TokenPair  `json:"tokens"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.svc.Create(r.Context(), CreateInput{
		EmailAddress: req.EmailAddress,
		FullName:     req.FullName,
		Secret:       req.Secret,
		Employment:   req.Employment.entity(),
		AvatarURL:    req.AvatarURL,
		IsActive:     req.IsActive,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owner(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req PatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := Patch{
		EmailAddress: req.EmailAddress,
		FullName:     req.FullName,
		Secret:       req.Secret,
		AvatarURL:    req.AvatarURL,
		IsActive:     req.IsActive,
	}
	if req.Employment != nil {
		emp := req.Employment.entity()
		patch.Employment = &emp
	}
	rec, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddRelation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req relationRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.svc.AddRelation(r.Context(), id, entity.RelationSet(r.PathValue("set")), req.TargetID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) RemoveRelation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owner(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.RemoveRelation(r.Context(), id, entity.RelationSet(r.PathValue("set")), r.PathValue("targetId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.svc.AppendMessage(r.Context(), id, r.PathValue("peerId"), req.Direction, req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec.Conversation(r.PathValue("peerId")))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, pair, err := h.svc.Login(r.Context(), req.EmailAddress, req.Secret)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LoginResponse{Employee: rec, Tokens: pair})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pair)
}

// Logout needs an access token; the refresh token in the body is optional.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing access token"})
		return
	}
	var req refreshRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	if _, err := h.svc.Logout(r.Context(), claims.RecordID, req.RefreshToken); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owner returns the {id} path value when it matches the authenticated record.
func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing access token"})
		return "", false
	}
	id := r.PathValue("id")
	if claims.RecordID != id {
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return "", false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrValidation.Error(), "field": ve.Field, "reason": ve.Reason})
	case errors.Is(err, ErrUniqueness):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "email address already registered"})
	case errors.Is(err, ErrConflict):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "record changed, retry"})
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, auth.ErrAuthentication):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.ErrAuthentication.Error()})
	case errors.Is(err, auth.ErrInvalidToken):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.ErrInvalidToken.Error()})
	default:
		h.logger.Errorw("request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
