package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeCredential(t *testing.T, token string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		t.Fatalf("writing credential: %v", err)
	}
	return path
}

func TestNewClient_MissingCredential(t *testing.T) {
	_, err := NewClient("", filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing credential file")
	}
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %T: %v", err, err)
	}
}

func TestCreateRegistrationToken(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token":"AARGHXYZ","expires_at":"2020-01-22T12:13:35.000-08:00"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, writeCredential(t, "ghp_secret"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	token, err := client.CreateRegistrationToken(context.Background(), "myorg", "myrepo")
	if err != nil {
		t.Fatalf("CreateRegistrationToken failed: %v", err)
	}
	if token != "AARGHXYZ" {
		t.Errorf("expected AARGHXYZ, got %q", token)
	}
	if gotAuth != "Bearer ghp_secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/repos/myorg/myrepo/actions/runners/registration-token" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestCreateRegistrationToken_OrgScoped(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token":"T"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, writeCredential(t, "ghp_secret"))
	if _, err := client.CreateRegistrationToken(context.Background(), "myorg", ""); err != nil {
		t.Fatalf("CreateRegistrationToken failed: %v", err)
	}
	if gotPath != "/orgs/myorg/actions/runners/registration-token" {
		t.Errorf("expected org-scoped path, got %q", gotPath)
	}
}

func TestAPIError_MessageExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, writeCredential(t, "bad"))
	_, err := client.CreateRegistrationToken(context.Background(), "o", "r")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Bad credentials" {
		t.Errorf("expected platform message, got %q", apiErr.Message)
	}
}

func TestAPIError_RawBodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, writeCredential(t, "tok"))
	_, err := client.ListRunners(context.Background(), "o", "r")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Message != "upstream exploded" {
		t.Errorf("expected raw body fallback, got %q", apiErr.Message)
	}
}

func TestListRunners(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_count":2,"runners":[
			{"id":1,"name":"ci-pool-1","status":"online","busy":true},
			{"id":2,"name":"ci-pool-2","status":"offline","busy":false}]}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, writeCredential(t, "tok"))
	runners, err := client.ListRunners(context.Background(), "o", "r")
	if err != nil {
		t.Fatalf("ListRunners failed: %v", err)
	}
	if len(runners) != 2 {
		t.Fatalf("expected 2 runners, got %d", len(runners))
	}
	if runners[0].ID != 1 || !runners[0].Busy {
		t.Errorf("unexpected first runner: %+v", runners[0])
	}
}

func TestDeleteRunner(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, writeCredential(t, "tok"))
	if err := client.DeleteRunner(context.Background(), "o", "r", 42); err != nil {
		t.Fatalf("DeleteRunner failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("expected DELETE, got %s", gotMethod)
	}
	if gotPath != "/repos/o/r/actions/runners/42" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestPartitionRunners(t *testing.T) {
	runners := []Runner{
		{ID: 1, Name: "ci-pool-a", Status: "online", Busy: true},
		{ID: 2, Name: "ci-pool-b", Status: "online", Busy: false},
		{ID: 3, Name: "ci-pool-c", Status: "offline", Busy: false},
		// Double-reported: offline wins over busy.
		{ID: 4, Name: "ci-pool-d", Status: "offline", Busy: true},
		// Foreign runner, excluded entirely.
		{ID: 5, Name: "other-pool-a", Status: "online", Busy: false},
	}

	sets := PartitionRunners(runners, "ci-pool")

	if len(sets.Busy) != 1 || sets.Busy[0] != 1 {
		t.Errorf("unexpected busy set: %v", sets.Busy)
	}
	if len(sets.Idle) != 1 || sets.Idle[0] != 2 {
		t.Errorf("unexpected idle set: %v", sets.Idle)
	}
	if len(sets.Offline) != 2 {
		t.Errorf("unexpected offline set: %v", sets.Offline)
	}

	// Disjointness.
	seen := map[int64]int{}
	for _, id := range sets.Busy {
		seen[id]++
	}
	for _, id := range sets.Idle {
		seen[id]++
	}
	for _, id := range sets.Offline {
		seen[id]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("runner %d appears in %d sets", id, n)
		}
	}
	if _, ok := seen[5]; ok {
		t.Error("foreign runner leaked into a set")
	}
}
