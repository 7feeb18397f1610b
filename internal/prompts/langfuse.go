package prompts

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/httpclient"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"
)

const defaultLangfuseHost = "https://cloud.langfuse.com"

// LangfuseConfig holds prompt-management API credentials.
type LangfuseConfig struct {
	Host      string        `mapstructure:"host"`
	PublicKey string        `mapstructure:"public_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LangfuseSource fetches text prompts from the Langfuse public API.
type LangfuseSource struct {
	host     string
	config   LangfuseConfig
	upstream httpclient.Upstream
	client   *http.Client
	logger   logging.Logger
}

type langfusePrompt struct {
	Name    string   `json:"name"`
	Version int      `json:"version"`
	Type    string   `json:"type"`
	Prompt  any      `json:"prompt"`
	Labels  []string `json:"labels"`
}

// NewLangfuseSource validates credentials and builds a breaker-guarded client.
func NewLangfuseSource(config LangfuseConfig) (*LangfuseSource, error) {
	if config.PublicKey == "" || config.SecretKey == "" {
		return nil, fmt.Errorf("langfuse: public and secret keys are required")
	}
	host := strings.TrimRight(strings.TrimSpace(config.Host), "/")
	if host == "" {
		host = defaultLangfuseHost
	}
	logger := logging.NewComponentLogger("LangfusePrompts")
	upstream := httpclient.LangfuseUpstream(config.Timeout)
	return &LangfuseSource{
		host:     host,
		config:   config,
		upstream: upstream,
		client:   httpclient.NewUpstreamClient(upstream, logger),
		logger:   logger,
	}, nil
}

func (s *LangfuseSource) GetTemplate(ctx context.Context, name, label string) (*Template, error) {
	label = normalizeLabel(label)
	endpoint := fmt.Sprintf("%s/api/public/v2/prompts/%s?label=%s", s.host, url.PathEscape(name), url.QueryEscape(label))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.config.PublicKey, s.config.SecretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("langfuse: fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := s.upstream.ReadBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("langfuse: read %s: %w", name, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, name, label)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("langfuse: fetch %s: status %d", name, resp.StatusCode)
	}

	var payload langfusePrompt
	if err := jsonx.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("langfuse: decode %s: %w", name, err)
	}
	content, ok := payload.Prompt.(string)
	if !ok {
		return nil, fmt.Errorf("langfuse: prompt %s is %q, only text prompts are supported", name, payload.Type)
	}
	s.logger.Debug("fetched prompt name=%s label=%s version=%d", name, label, payload.Version)
	return &Template{Name: name, Label: label, Version: payload.Version, Content: content, Source: "langfuse"}, nil
}

// Upload creates a new text prompt version carrying labels.
func (s *LangfuseSource) Upload(ctx context.Context, name, content string, labels []string) (int, error) {
	body, err := jsonx.Marshal(map[string]any{
		"name":   name,
		"type":   "text",
		"prompt": content,
		"labels": labels,
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/public/v2/prompts", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.config.PublicKey, s.config.SecretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("langfuse: upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := s.upstream.ReadBody(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("langfuse: read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("langfuse: upload %s: status %d", name, resp.StatusCode)
	}
	var created langfusePrompt
	if err := jsonx.Unmarshal(data, &created); err != nil {
		return 0, fmt.Errorf("langfuse: decode upload response: %w", err)
	}
	return created.Version, nil
}
