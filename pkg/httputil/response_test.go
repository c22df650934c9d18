package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusConflict, "KEYSTORE_ALREADY_INITIALIZED", "already initialized")

	if rec.Code != http.StatusConflict {
		t.Errorf("want status 409, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("want application/json, got %s", ct)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "KEYSTORE_ALREADY_INITIALIZED" {
		t.Errorf("want code KEYSTORE_ALREADY_INITIALIZED, got %s", resp.Code)
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		JWT string `json:"jwt"`
	}
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"jwt":"a.b.c"}`, false},
		{"empty", ``, true},
		{"not json", `jwt=a.b.c`, true},
		{"unknown field", `{"jwt":"a","extra":1}`, true},
		{"trailing data", `{"jwt":"a"}{"jwt":"b"}`, true},
		{"wrong type", `{"jwt":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			var b body
			err := DecodeJSON(req, &b)
			if (err != nil) != tt.wantErr {
				t.Errorf("want error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
