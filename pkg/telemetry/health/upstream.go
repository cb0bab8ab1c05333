package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TagsPath is the upstream model listing endpoint used for connectivity
// checks.
const TagsPath = "/api/tags"

// Upstream probes the model-serving daemon.
type Upstream struct {
	baseURL string
	client  *http.Client
}

// NewUpstream creates a probe for baseURL. A zero timeout defaults to 5
// seconds.
func NewUpstream(baseURL string, timeout time.Duration) *Upstream {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Upstream{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the probed address.
func (u *Upstream) BaseURL() string {
	return u.baseURL
}

// Probe lists the models the daemon serves.
func (u *Upstream) Probe(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+TagsPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode %s: %w", TagsPath, err)
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// Check implements CheckFunc.
func (u *Upstream) Check(ctx context.Context) error {
	_, err := u.Probe(ctx)
	return err
}
