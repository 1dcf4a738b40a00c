package assess

//go:generate go run go.uber.org/mock/mockgen -source=configurer.go -destination=mock_configurer_test.go -package=assess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/comtradebench/greenbench/internal/paging"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// Configurer resets the mock API session of a task before scoring.
type Configurer interface {
	// Configure maps to POST /configure on the mock API.
	Configure(ctx context.Context, def tasks.Definition) error
}

// LocalConfigurer configures an in-process paginator.
type LocalConfigurer struct {
	Pager *paging.Paginator
}

// Configure implements Configurer.
func (c LocalConfigurer) Configure(_ context.Context, def tasks.Definition) error {
	return c.Pager.Configure(def)
}

// HTTPConfigurer configures a mock API reachable at BaseURL.
type HTTPConfigurer struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPConfigurer creates a configurer with a short request timeout.
func NewHTTPConfigurer(baseURL string) *HTTPConfigurer {
	return &HTTPConfigurer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Configure implements Configurer.
func (c *HTTPConfigurer) Configure(ctx context.Context, def tasks.Definition) error {
	body, err := json.Marshal(map[string]any{
		"task_id": def.ID,
		"query":   def.Query.Map(),
		"mode":    def.Fault.Mode,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/configure", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("configuring mock service: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("configuring mock service: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
