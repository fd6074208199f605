package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Vision is the remote high-accuracy OCR backend, backed by the Cloud
// Vision REST API.
type Vision struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewVision(apiKey string) *Vision {
	return &Vision{
		BaseURL: "https://vision.googleapis.com",
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (v *Vision) Name() string { return "remote" }

func (v *Vision) Recognize(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return v.annotateFile(ctx, data, "application/pdf")
	}
	return v.annotateImage(ctx, data)
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionImageEntry struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImageRequest struct {
	Requests []visionImageEntry `json:"requests"`
}

type visionAnnotation struct {
	FullTextAnnotation struct {
		Text string `json:"text"`
	} `json:"fullTextAnnotation"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type visionImageResponse struct {
	Responses []visionAnnotation `json:"responses"`
}

func (v *Vision) annotateImage(ctx context.Context, data []byte) (string, error) {
	reqBody := visionImageRequest{
		Requests: []visionImageEntry{{
			Image:    visionImage{Content: base64.StdEncoding.EncodeToString(data)},
			Features: []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
		}},
	}

	var parsed visionImageResponse
	if err := v.post(ctx, "/v1/images:annotate", reqBody, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Responses) == 0 {
		return "", fmt.Errorf("vision returned no responses")
	}
	if parsed.Responses[0].Error != nil {
		return "", fmt.Errorf("vision error: %s", parsed.Responses[0].Error.Message)
	}
	return parsed.Responses[0].FullTextAnnotation.Text, nil
}

type visionInputConfig struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

type visionFileEntry struct {
	InputConfig visionInputConfig `json:"inputConfig"`
	Features    []visionFeature   `json:"features"`
}

type visionFileRequest struct {
	Requests []visionFileEntry `json:"requests"`
}

type visionFileResponse struct {
	Responses []struct {
		Responses []visionAnnotation `json:"responses"`
	} `json:"responses"`
}

func (v *Vision) annotateFile(ctx context.Context, data []byte, mimeType string) (string, error) {
	reqBody := visionFileRequest{
		Requests: []visionFileEntry{{
			InputConfig: visionInputConfig{
				Content:  base64.StdEncoding.EncodeToString(data),
				MimeType: mimeType,
			},
			Features: []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
		}},
	}

	var parsed visionFileResponse
	if err := v.post(ctx, "/v1/files:annotate", reqBody, &parsed); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, outer := range parsed.Responses {
		for _, page := range outer.Responses {
			if page.Error != nil {
				return "", fmt.Errorf("vision error: %s", page.Error.Message)
			}
			b.WriteString(page.FullTextAnnotation.Text)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func (v *Vision) post(ctx context.Context, endpoint string, reqBody, out any) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := v.BaseURL + endpoint + "?key=" + v.APIKey
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.Client.Do(req)
	if err != nil {
		return fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision returned status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
