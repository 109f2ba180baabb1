package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hardenlabs/scanweave/internal/model"
)

const generatePath = "v1beta/models/%s:generateContent"

// Client talks to the remote text generation service. Errors are
// classified into model.SynthesisError kinds by HTTP status, never by
// sniffing response text.
type Client struct {
	requestURL *url.URL
	apiKey     string
	client     *http.Client
}

func NewClient(endpoint, modelName, apiKey string) (*Client, error) {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errors.New("please define the endpoint with a scheme and host, e.g. `https://some-url.com`")
	}
	if modelName == "" {
		return nil, errors.New("model name must not be empty")
	}

	parsedURL.Path = parsedURL.Path + "/" + fmt.Sprintf(generatePath, modelName)

	c := &Client{
		requestURL: parsedURL,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}

	return c, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate sends one prompt and returns the generated text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		// transport failures and timeouts are worth another attempt
		return "", &model.SynthesisError{Kind: model.SynthesisTransientUpstream, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return c.decodeResponse(resp)
}

func (c *Client) decodeResponse(resp *http.Response) (string, error) {
	switch {
	case resp.StatusCode == http.StatusOK:
		// handled below

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &model.SynthesisError{
			Kind:       model.SynthesisAuthFailure,
			StatusCode: resp.StatusCode,
		}

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusRequestEntityTooLarge:
		return "", &model.SynthesisError{
			Kind:       model.SynthesisPayloadTooLarge,
			StatusCode: resp.StatusCode,
		}

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", &model.SynthesisError{
			Kind:       model.SynthesisTransientUpstream,
			StatusCode: resp.StatusCode,
		}

	default:
		return "", &model.SynthesisError{
			Kind:       model.SynthesisInvalidResponse,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status"),
		}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", &model.SynthesisError{
			Kind:       model.SynthesisInvalidResponse,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decoding json response failed: %w", err),
		}
	}

	var sb strings.Builder
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		break // only the first candidate is used
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &model.SynthesisError{
			Kind:       model.SynthesisInvalidResponse,
			StatusCode: resp.StatusCode,
			Err:        errors.New("empty reply"),
		}
	}
	return text, nil
}
