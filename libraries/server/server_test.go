package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voltsys/batlog/libraries/encoding"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]int{"records": 3})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content-type = %q", ct)
	}
	var body map[string]int
	if err := encoding.JSONiter.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if body["records"] != 3 {
		t.Errorf("body = %v", body)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, "no log for serial X")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := encoding.JSONiter.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "no log for serial X" {
		t.Errorf("body = %v", body)
	}
}

func TestGetRequestParamsQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/device/X/log?limit=5&order=asc", nil)
	params, err := GetRequestParams(r)
	if err != nil {
		t.Fatalf("GetRequestParams: %v", err)
	}
	if params["limit"] != "5" || params["order"] != "asc" {
		t.Errorf("params = %v", params)
	}
}

func TestGetRequestParamsBody(t *testing.T) {
	body := strings.NewReader(`{"serial":"BAT-1","limit":10}`)
	r := httptest.NewRequest(http.MethodPost, "/query", body)
	params, err := GetRequestParams(r)
	if err != nil {
		t.Fatalf("GetRequestParams: %v", err)
	}
	if params["serial"] != "BAT-1" {
		t.Errorf("params = %v", params)
	}
}

func TestSocketListenTCPAndUnix(t *testing.T) {
	tcp := SocketListen("127.0.0.1:0")
	defer tcp.Close()
	if tcp.Addr().Network() != "tcp" {
		t.Errorf("network = %s", tcp.Addr().Network())
	}

	sock := filepath.Join(t.TempDir(), "api.sock")
	unix := SocketListen(sock)
	defer unix.Close()
	if unix.Addr().Network() != "unix" {
		t.Errorf("network = %s", unix.Addr().Network())
	}
}
