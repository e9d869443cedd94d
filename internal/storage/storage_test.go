package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestSavePathLayout(t *testing.T) {
	storyID := uuid.New()
	path := SavePath(storyID, CategoryClip, "scene_0.mp4")
	want := storyID.String() + "/clips/scene_0.mp4"
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestExistsFound(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(server.URL, "service-key", "videos")
	ok, err := s.Exists(context.Background(), "abc/artifacts/final.mp4")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !ok {
		t.Error("object should exist")
	}
	if gotMethod != http.MethodHead {
		t.Errorf("method = %s, want HEAD", gotMethod)
	}
	if gotPath != "/storage/v1/object/videos/abc/artifacts/final.mp4" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestExistsMissingIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := New(server.URL, "service-key", "videos")
	ok, err := s.Exists(context.Background(), "abc/artifacts/final.mp4")
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if ok {
		t.Error("object should not exist")
	}
}

func TestExistsSurfacesPermanentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	s := New(server.URL, "service-key", "videos")
	ok, err := s.Exists(context.Background(), "abc/artifacts/final.mp4")
	if err == nil {
		t.Fatal("expected an error for a 403")
	}
	if ok {
		t.Error("a failed check must not report the object as present")
	}
}
