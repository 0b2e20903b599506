package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-deviceid/pkg/device"
	"github.com/tendant/simple-deviceid/pkg/identity"
)

const laptop = `{"userAgent":"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)","screen":{"width":1440,"height":900},"timezone":"Europe/Berlin"}`

func setupTestServer(t *testing.T, opts ...device.ServiceOption) http.Handler {
	resolver := identity.NewInMemResolver()
	resolver.Add(identity.Identity{Username: "alice", Realm: "/", Active: true})
	resolver.Add(identity.Identity{Username: "bob", Realm: "/", Active: false})

	store := device.NewProfileStore(device.NewInMemProfileRepository())
	service := device.NewService(store, resolver, opts...)
	handler := NewDeviceHandler(service, WithClientIPFunc(func(r *http.Request) string {
		return "192.0.2.10"
	}))
	return Handler(handler)
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestDeviceHandler_MatchAndSave(t *testing.T) {
	h := setupTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/match", `{"username":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var match MatchResponse
	decode(t, rec, &match)
	assert.Equal(t, device.OutcomeNoCandidateSupplied, match.Outcome)

	rec = doRequest(t, h, http.MethodPost, "/match", `{"username":"alice","profile":`+laptop+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &match)
	assert.Equal(t, device.OutcomeNoRegisteredDevice, match.Outcome)

	rec = doRequest(t, h, http.MethodPost, "/save", `{"username":"alice","name":"Work Laptop","profile":`+laptop+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved SaveResponse
	decode(t, rec, &saved)
	assert.Equal(t, device.SaveStatusSaved, saved.SaveStatus)
	require.NotNil(t, saved.Profile)
	assert.Equal(t, "Work Laptop", saved.Profile.Name)
	assert.Nil(t, saved.Profile.Attributes)

	rec = doRequest(t, h, http.MethodPost, "/match", `{"username":"alice","profile":`+laptop+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &match)
	assert.Equal(t, device.OutcomeHasRegisteredDevice, match.Outcome)
	require.Len(t, match.Profiles, 1)
	require.NotNil(t, match.Identical)
	assert.Equal(t, saved.Profile.ID, match.Identical.ID)

	ip, ok := match.Profiles[0].Attributes.GetString(device.AttrClientIPAddress)
	assert.True(t, ok)
	assert.Equal(t, "192.0.2.10", ip)
}

func TestDeviceHandler_ClientIPFromBodyWins(t *testing.T) {
	h := setupTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/save", `{"username":"alice","client_ip":"203.0.113.7","profile":`+laptop+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/users/alice/profiles?include_attributes=true", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListProfilesResponse
	decode(t, rec, &list)
	require.Len(t, list.Profiles, 1)

	ip, ok := list.Profiles[0].Attributes.GetString(device.AttrClientIPAddress)
	assert.True(t, ok)
	assert.Equal(t, "203.0.113.7", ip)
}

func TestDeviceHandler_SaveRejections(t *testing.T) {
	h := setupTestServer(t)

	tests := []struct {
		name     string
		body     string
		expected device.SaveStatus
	}{
		{"empty profile", `{"username":"alice","profile":{}}`, device.SaveStatusRejectedEmpty},
		{"missing profile", `{"username":"alice"}`, device.SaveStatusRejectedEmpty},
		{"duplicate keys", `{"username":"alice","profile":{"a":1,"a":2}}`, device.SaveStatusRejectedMalformed},
		{"non-object root", `{"username":"alice","profile":[1,2]}`, device.SaveStatusRejectedMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/save", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp SaveResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.expected, resp.SaveStatus)
			assert.Nil(t, resp.Profile)
		})
	}
}

func TestDeviceHandler_ErrorStatuses(t *testing.T) {
	h := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"bad json", http.MethodPost, "/match", `{`, http.StatusBadRequest, ""},
		{"unknown identity", http.MethodPost, "/match", `{"username":"nobody","profile":` + laptop + `}`, http.StatusNotFound, "IDENTITY_NOT_FOUND"},
		{"inactive identity", http.MethodPost, "/save", `{"username":"bob","profile":` + laptop + `}`, http.StatusForbidden, "IDENTITY_INACTIVE"},
		{"malformed save for unknown identity", http.MethodPost, "/save", `{"username":"nobody","profile":{"a":1,"a":2}}`, http.StatusNotFound, "IDENTITY_NOT_FOUND"},
		{"malformed save for inactive identity", http.MethodPost, "/save", `{"username":"bob","profile":[1]}`, http.StatusForbidden, "IDENTITY_INACTIVE"},
		{"malformed match candidate", http.MethodPost, "/match", `{"username":"alice","profile":"text"}`, http.StatusBadRequest, "MALFORMED_ATTRIBUTES"},
		{"unknown profile", http.MethodDelete, "/users/alice/profiles/missing", ``, http.StatusNotFound, "NOT_FOUND"},
		{"blank rename", http.MethodPut, "/users/alice/profiles/missing", `{"name":" "}`, http.StatusBadRequest, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, tt.method, tt.target, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			var resp ErrorResponse
			decode(t, rec, &resp)
			assert.Equal(t, "error", resp.Status)
			if tt.code != "" {
				assert.Equal(t, tt.code, resp.Error)
			}
		})
	}
}

func TestDeviceHandler_UncodedErrorIsInternal(t *testing.T) {
	resolver := identity.ResolverFunc(func(ctx context.Context, username, realm string) (identity.Identity, error) {
		return identity.Identity{}, context.DeadlineExceeded
	})
	service := device.NewService(device.NewProfileStore(device.NewInMemProfileRepository()), resolver)
	h := Handler(NewDeviceHandler(service))

	rec := doRequest(t, h, http.MethodPost, "/match", `{"username":"alice","profile":`+laptop+`}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	var resp ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error)
	assert.Equal(t, "Internal error", resp.Message)
}

func TestDeviceHandler_ProfileManagement(t *testing.T) {
	h := setupTestServer(t, device.WithMaxProfilesAllowed(2), device.WithAutoStore(true))

	rec := doRequest(t, h, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg ConfigResponse
	decode(t, rec, &cfg)
	assert.Equal(t, ConfigResponse{MaxProfilesAllowed: 2, AutoStoreProfiles: true}, cfg)

	rec = doRequest(t, h, http.MethodPost, "/save", `{"username":"alice","profile":`+laptop+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved SaveResponse
	decode(t, rec, &saved)
	id := saved.Profile.ID
	assert.True(t, strings.HasPrefix(saved.Profile.Name, "Mac ("))

	rec = doRequest(t, h, http.MethodPost, "/users/alice/profiles/"+id+"/touch?realm=/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var touched ProfileEnvelope
	decode(t, rec, &touched)
	assert.Equal(t, 1, touched.Profile.SelectionCount)

	rec = doRequest(t, h, http.MethodPut, "/users/alice/profiles/"+id, `{"name":"Home Mac"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/users/alice/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListProfilesResponse
	decode(t, rec, &list)
	require.Len(t, list.Profiles, 1)
	assert.Equal(t, "Home Mac", list.Profiles[0].Name)
	assert.Nil(t, list.Profiles[0].Attributes)

	rec = doRequest(t, h, http.MethodGet, "/users/alice/profiles?include_attributes=true", "")
	var detailed ListProfilesResponse
	decode(t, rec, &detailed)
	require.Len(t, detailed.Profiles, 1)
	require.NotNil(t, detailed.Profiles[0].Attributes)
	assert.Equal(t, []string{"userAgent", "screen", "timezone", device.AttrClientIPAddress}, detailed.Profiles[0].Attributes.Keys())

	rec = doRequest(t, h, http.MethodDelete, "/users/alice/profiles/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/users/alice/profiles", "")
	var empty ListProfilesResponse
	decode(t, rec, &empty)
	assert.Empty(t, empty.Profiles)
}
