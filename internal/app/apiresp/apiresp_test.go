package apiresp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusConflict, "exam is locked")

	var env struct {
		OK    bool `json:"ok"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.OK || env.Error.Code != "conflict" || env.Error.Message != "exam is locked" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestWriteErrorDefaultsMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusTooManyRequests, "")

	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusTooManyRequests || env.Error == nil {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
	if env.Error.Code != "rate_limited" || env.Error.Message != "Too Many Requests" {
		t.Fatalf("unexpected error payload: %+v", env.Error)
	}
}

func TestWriteAttachment(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteAttachment(rr, "text/plain; charset=utf-8", "exam_3_aiken.txt", []byte("abc"))
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="exam_3_aiken.txt"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rr.Header().Get("Content-Length") != "3" {
		t.Fatalf("unexpected length %q", rr.Header().Get("Content-Length"))
	}
}
