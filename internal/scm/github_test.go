package scm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newGitHubTestServer(t *testing.T, sha string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/infor/csf-integration-testscripts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 1, "full_name": "infor/csf-integration-testscripts"}`)
	})
	mux.HandleFunc("/repos/infor/csf-integration-testscripts/branches/master", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name": "master", "commit": {"sha": %q}}`, sha)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHub(t *testing.T, srv *httptest.Server, identifiers []string) *GitHub {
	t.Helper()
	gh, err := NewGitHub("infor/csf-integration-testscripts", "master", "", identifiers)
	if err != nil {
		t.Fatalf("NewGitHub() error = %v", err)
	}
	if err := gh.SetBaseURL(srv.URL + "/"); err != nil {
		t.Fatalf("SetBaseURL() error = %v", err)
	}
	return gh
}

func TestGitHub_LatestCommit(t *testing.T) {
	srv := newGitHubTestServer(t, "deadbeefcafe")
	gh := newTestGitHub(t, srv, nil)

	got, err := gh.LatestCommit(context.Background())
	if err != nil {
		t.Fatalf("LatestCommit() error = %v", err)
	}
	if got != "deadbeefcafe" {
		t.Errorf("LatestCommit() = %q, want deadbeefcafe", got)
	}
}

func TestGitHub_Verify(t *testing.T) {
	srv := newGitHubTestServer(t, "deadbeefcafe")

	t.Run("matching identifier", func(t *testing.T) {
		gh := newTestGitHub(t, srv, []string{"csf-integration-testscripts"})
		if err := gh.Verify(context.Background()); err != nil {
			t.Errorf("Verify() error = %v", err)
		}
	})

	t.Run("wrong identifier rejected", func(t *testing.T) {
		gh := newTestGitHub(t, srv, []string{"some-other-repo"})
		if err := gh.Verify(context.Background()); err == nil {
			t.Error("Verify() should reject a non-matching repository")
		}
	})
}

func TestNewGitHub_InvalidOwnerRepo(t *testing.T) {
	for _, bad := range []string{"", "justaname", "a/b/c", "/repo", "owner/"} {
		if _, err := NewGitHub(bad, "master", "", nil); err == nil {
			t.Errorf("NewGitHub(%q) should fail", bad)
		}
	}
}
