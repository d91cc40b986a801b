package app

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	service, _, _, _ := newTestService(t)
	server := httptest.NewServer(NewHTTPServer(service, "*").Handler())
	t.Cleanup(server.Close)
	return server, service
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireCredential(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/drafts", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/drafts", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("with bad token: status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/drafts", "panel-secret", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("with token: status = %d, want 201", resp.StatusCode)
	}
}

func TestDraftLifecycleOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := "panel-secret"

	resp := doJSON(t, http.MethodPost, server.URL+"/api/drafts", token, nil)
	var created DraftView
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	resp = doJSON(t, http.MethodPatch, server.URL+"/api/drafts/"+created.ID, token, map[string]any{
		"title": "From the kiln",
		"slug":  "from-the-kiln",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	var updated DraftView
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode patch response: %v", err)
	}
	if updated.Title != "From the kiln" {
		t.Errorf("title = %q", updated.Title)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/drafts/"+created.ID+"/save", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("save status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/drafts/"+created.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("discard status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, server.URL+"/api/drafts/"+created.ID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after discard status = %d, want 404", resp.StatusCode)
	}
}

func TestStageImageOverMultipart(t *testing.T) {
	server, service := newTestServer(t)
	view := service.CreateDraft()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="photo.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/drafts/"+view.ID+"/images", &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer panel-secret")
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var staged ImageView
	if err := json.NewDecoder(resp.Body).Decode(&staged); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if staged.PreviewHandle == "" || staged.State != "local" {
		t.Errorf("unexpected staged image: %+v", staged)
	}

	// The preview is servable before any upload happened.
	previewResp := doJSON(t, http.MethodGet, server.URL+"/api/previews?handle="+staged.PreviewHandle, "", nil)
	if previewResp.StatusCode != http.StatusOK {
		t.Errorf("preview status = %d", previewResp.StatusCode)
	}
	if ct := previewResp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("preview content type = %q", ct)
	}
}

func TestGetUnknownPost(t *testing.T) {
	server, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, server.URL+"/api/posts/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
