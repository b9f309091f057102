package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

const DefaultBaseURL = "https://api.github.com"

// API is the slice of the hosted platform's runner administration surface the
// fleet controller needs: minting one-shot registration tokens, listing
// runners, and deleting registrations.
type API interface {
	CreateRegistrationToken(ctx context.Context, org, repo string) (string, error)
	ListRunners(ctx context.Context, org, repo string) ([]Runner, error)
	DeleteRunner(ctx context.Context, org, repo string, id int64) error
}

// CredentialError reports a missing or unreadable administrative credential
// file. It is fatal at submit time.
type CredentialError struct {
	Path string
	Err  error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("reading credential file %s: %v", e.Path, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the platform. Message is the platform's
// own error message when the body parsed as JSON, else the raw body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (HTTP %d): %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
}

// NewClient reads the long-lived admin token from credentialFile. Retries are
// disabled on the underlying client: for hook calls the scheduler's own
// attempt-level retry is the retry policy, and the scaler loop simply picks
// up again on its next poll.
func NewClient(baseURL, credentialFile string) (*Client, error) {
	data, err := os.ReadFile(credentialFile)
	if err != nil {
		return nil, &CredentialError{Path: credentialFile, Err: err}
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil, &CredentialError{Path: credentialFile, Err: fmt.Errorf("file is empty")}
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = 0
	hc.Logger = nil

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    hc,
	}, nil
}

// runnersPath is the API prefix for the org or repo runner collection. An
// empty repo means the fleet is organization-scoped.
func runnersPath(org, repo string) string {
	if repo == "" {
		return fmt.Sprintf("/orgs/%s/actions/runners", org)
	}
	return fmt.Sprintf("/repos/%s/%s/actions/runners", org, repo)
}

func (c *Client) CreateRegistrationToken(ctx context.Context, org, repo string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, runnersPath(org, repo)+"/registration-token", http.StatusCreated)
	if err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &APIError{StatusCode: http.StatusCreated, Message: string(body)}
	}
	if resp.Token == "" {
		return "", &APIError{StatusCode: http.StatusCreated, Message: "response missing token field"}
	}
	return resp.Token, nil
}

func (c *Client) ListRunners(ctx context.Context, org, repo string) ([]Runner, error) {
	var all []Runner
	for page := 1; ; page++ {
		path := fmt.Sprintf("%s?per_page=100&page=%d", runnersPath(org, repo), page)
		body, err := c.do(ctx, http.MethodGet, path, http.StatusOK)
		if err != nil {
			return nil, err
		}

		var resp struct {
			TotalCount int      `json:"total_count"`
			Runners    []Runner `json:"runners"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &APIError{StatusCode: http.StatusOK, Message: string(body)}
		}
		all = append(all, resp.Runners...)
		if len(resp.Runners) == 0 || len(all) >= resp.TotalCount {
			return all, nil
		}
	}
}

func (c *Client) DeleteRunner(ctx context.Context, org, repo string, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", runnersPath(org, repo), id), http.StatusNoContent)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, expect int) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s %s: %w", method, path, err)
	}

	if resp.StatusCode != expect {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: extractMessage(body)}
	}
	return body, nil
}

// extractMessage pulls the platform's message field out of an error body,
// falling back to the raw body when it is not JSON.
func extractMessage(body []byte) string {
	var errResp struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		return errResp.Message
	}
	return string(body)
}
