package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-deviceid/pkg/attributes"
	"github.com/tendant/simple-deviceid/pkg/device"
	idmerrors "github.com/tendant/simple-deviceid/pkg/errors"
)

const (
	defaultRealm   = "/"
	maxRequestBody = 1 << 20
)

// ClientIPFunc returns the address a request came from
type ClientIPFunc func(r *http.Request) string

// DeviceHandler handles HTTP requests for device matching and profile management
type DeviceHandler struct {
	service  *device.Service
	clientIP ClientIPFunc
}

// HandlerOption configures a DeviceHandler
type HandlerOption func(*DeviceHandler)

// WithClientIPFunc sets how the server-observed address is determined. It is only used
// when the request body carries no client_ip, since the caller is usually an orchestrator
// relaying the end user's address.
func WithClientIPFunc(fn ClientIPFunc) HandlerOption {
	return func(h *DeviceHandler) {
		h.clientIP = fn
	}
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(service *device.Service, opts ...HandlerOption) *DeviceHandler {
	h := &DeviceHandler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MatchRequest represents the request body for matching a candidate fingerprint
type MatchRequest struct {
	Realm    string          `json:"realm"`
	Username string          `json:"username"`
	ClientIP string          `json:"client_ip,omitempty"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// SaveRequest represents the request body for storing a candidate fingerprint
type SaveRequest struct {
	Realm      string          `json:"realm"`
	Username   string          `json:"username"`
	ClientIP   string          `json:"client_ip,omitempty"`
	Name       string          `json:"name,omitempty"`
	MaxAllowed int             `json:"max_allowed,omitempty"`
	Profile    json.RawMessage `json:"profile"`
}

// RenameRequest represents the request body for renaming a profile
type RenameRequest struct {
	Name string `json:"name"`
}

// ProfileResponse is the wire form of a stored profile
type ProfileResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Attributes       *attributes.Map `json:"attributes,omitempty" copier:"-"`
	SelectionCount   int             `json:"selection_count"`
	LastSelectedDate time.Time       `json:"last_selected_date"`
	CreatedAt        time.Time       `json:"created_at"`
}

// MatchResponse represents the response body for a match
type MatchResponse struct {
	Status    string            `json:"status"`
	Outcome   device.Outcome    `json:"outcome"`
	Profiles  []ProfileResponse `json:"profiles"`
	Identical *ProfileResponse  `json:"identical,omitempty"`
	AutoStore bool              `json:"auto_store"`
}

// SaveResponse represents the response body for a save
type SaveResponse struct {
	Status     string            `json:"status"`
	SaveStatus device.SaveStatus `json:"save_status"`
	Reason     string            `json:"reason,omitempty"`
	Profile    *ProfileResponse  `json:"profile,omitempty"`
}

// ListProfilesResponse represents the response body for listing profiles
type ListProfilesResponse struct {
	Status   string            `json:"status"`
	Profiles []ProfileResponse `json:"profiles"`
}

// ProfileEnvelope wraps a single profile
type ProfileEnvelope struct {
	Status  string          `json:"status"`
	Profile ProfileResponse `json:"profile"`
}

// ConfigResponse exposes the settings an orchestrator needs to drive the flow
type ConfigResponse struct {
	MaxProfilesAllowed int  `json:"max_profiles_allowed"`
	AutoStoreProfiles  bool `json:"auto_store_profiles"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Match handles routing a candidate fingerprint against the user's trusted devices
func (h *DeviceHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	candidate, err := h.candidate(r, req.ClientIP, req.Profile)
	if err != nil {
		renderError(w, r, err)
		return
	}

	result, err := h.service.MatchCandidate(r.Context(), userKey(req.Realm, req.Username), candidate)
	if err != nil {
		renderError(w, r, err)
		return
	}

	response := MatchResponse{
		Status:    "success",
		Outcome:   result.Outcome,
		Profiles:  toProfileResponses(result.Profiles, true),
		AutoStore: h.service.AutoStoreProfiles(),
	}
	if result.Identical != nil {
		identical := toProfileResponse(*result.Identical, true)
		response.Identical = &identical
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// Save handles storing a candidate fingerprint
func (h *DeviceHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	key := userKey(req.Realm, req.Username)
	candidate, err := h.candidate(r, req.ClientIP, req.Profile)

	var result device.SaveResult
	switch {
	case idmerrors.IsCode(err, idmerrors.ErrCodeMalformedAttributes):
		result, err = h.service.RejectMalformed(r.Context(), key, err)
	case err == nil:
		result, err = h.service.SaveCandidate(r.Context(), key, candidate, req.Name, req.MaxAllowed)
	}
	if err != nil {
		renderError(w, r, err)
		return
	}

	response := SaveResponse{
		Status:     "success",
		SaveStatus: result.Status,
		Reason:     result.Reason,
	}
	statusCode := http.StatusOK
	if result.Profile != nil {
		profile := toProfileResponse(*result.Profile, false)
		response.Profile = &profile
		statusCode = http.StatusCreated
	}
	render.Status(r, statusCode)
	render.JSON(w, r, response)
}

// ListProfiles handles listing a user's stored profiles.
// Attributes are only included with ?include_attributes=true.
func (h *DeviceHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	includeAttributes, _ := strconv.ParseBool(r.URL.Query().Get("include_attributes"))

	profiles, err := h.service.ListProfiles(r.Context(), routeUserKey(r))
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListProfilesResponse{
		Status:   "success",
		Profiles: toProfileResponses(profiles, includeAttributes),
	})
}

// TouchProfile handles marking a profile as just used
func (h *DeviceHandler) TouchProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.TouchProfile(r.Context(), routeUserKey(r), chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ProfileEnvelope{Status: "success", Profile: toProfileResponse(profile, false)})
}

// RenameProfile handles changing a profile's display name
func (h *DeviceHandler) RenameProfile(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	profile, err := h.service.RenameProfile(r.Context(), routeUserKey(r), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ProfileEnvelope{Status: "success", Profile: toProfileResponse(profile, false)})
}

// DeleteProfile handles removing a profile
func (h *DeviceHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProfile(r.Context(), routeUserKey(r), chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Device profile deleted"})
}

// GetConfig handles reporting the device settings
func (h *DeviceHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ConfigResponse{
		MaxProfilesAllowed: h.service.MaxProfilesAllowed(),
		AutoStoreProfiles:  h.service.AutoStoreProfiles(),
	})
}

// Handler returns a http.Handler for the device API
func Handler(h *DeviceHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/config", h.GetConfig)
	r.Post("/match", h.Match)
	r.Post("/save", h.Save)
	r.Route("/users/{username}/profiles", func(r chi.Router) {
		r.Get("/", h.ListProfiles)
		r.Post("/{id}/touch", h.TouchProfile)
		r.Put("/{id}", h.RenameProfile)
		r.Delete("/{id}", h.DeleteProfile)
	})

	return r
}

// candidate parses the submitted profile document. The client_ip in the body wins over
// the server-observed address.
func (h *DeviceHandler) candidate(r *http.Request, bodyIP string, raw json.RawMessage) (device.Candidate, error) {
	var attrs *attributes.Map
	if len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		parsed, err := attributes.Parse(raw)
		if err != nil {
			return device.Candidate{}, idmerrors.MalformedAttributes(err)
		}
		attrs = parsed
	}

	ip := strings.TrimSpace(bodyIP)
	if ip == "" && h.clientIP != nil {
		ip = h.clientIP(r)
	}
	return device.Candidate{Attributes: attrs, ClientIP: ip}, nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Failed to decode request body", "error", err)
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func userKey(realm, username string) device.UserKey {
	if realm == "" {
		realm = defaultRealm
	}
	return device.UserKey{Realm: realm, Username: username}
}

// routeUserKey reads the username from the path and the realm from ?realm=
func routeUserKey(r *http.Request) device.UserKey {
	return userKey(r.URL.Query().Get("realm"), chi.URLParam(r, "username"))
}

func toProfileResponse(p device.Profile, includeAttributes bool) ProfileResponse {
	var resp ProfileResponse
	if err := copier.Copy(&resp, &p); err != nil {
		slog.Error("Failed to copy profile", "profile_id", p.ID, "error", err)
		resp.ID = p.ID
		resp.Name = p.Name
	}
	if includeAttributes {
		resp.Attributes = p.Attributes
	}
	return resp
}

func toProfileResponses(profiles []device.Profile, includeAttributes bool) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileResponse(p, includeAttributes))
	}
	return out
}

// renderError maps coded errors to their HTTP status. Uncoded errors are reported
// without their text.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var coded *idmerrors.Error
	if !idmerrors.As(err, &coded) {
		coded = idmerrors.InternalWrap(err, "Internal error")
	}

	status := coded.HTTPStatusCode()
	if status >= http.StatusInternalServerError {
		slog.Error("Device API request failed", "path", r.URL.Path, "code", coded.Code, "details", coded.Details, "error", err)
	}
	renderErrorResponse(w, r, status, coded.Message, string(coded.Code))
}

// renderErrorResponse renders an error response with the given status code and message
func renderErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message, errorDetail string) {
	response := ErrorResponse{
		Status:  "error",
		Message: message,
	}

	if errorDetail != "" {
		response.Error = errorDetail
	}

	render.Status(r, statusCode)
	render.JSON(w, r, response)
}
