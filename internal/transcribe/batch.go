// Package transcribe implements the batch speech-to-text fallback: record,
// stop, transcribe the whole clip in one request.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/chadiek/voicebridge/internal/pcm"
)

// MinSpeechDuration is the shortest clip worth transcribing. Anything under
// it is almost certainly a tap or a breath; it is suppressed locally without
// touching the network.
const MinSpeechDuration = 1500 * time.Millisecond

// Result is one batch transcription outcome. Suppressed clips come back with
// an empty Text and Suppressed set.
type Result struct {
	Text       string
	Suppressed bool
}

// Client uploads recorded clips to a transcription endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New builds a Client. model selects the remote transcription model.
func New(endpoint, apiKey, model string) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Transcribe converts one recorded clip of mono float samples to text. Clips
// shorter than MinSpeechDuration are suppressed without a remote call.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error) {
	dur := pcm.SampleDuration(len(samples), sampleRate)
	if dur < MinSpeechDuration {
		log.Printf("transcribe: suppressing %s clip, below %s threshold", dur.Round(time.Millisecond), MinSpeechDuration)
		return Result{Suppressed: true}, nil
	}

	wav := pcm.EncodeWAV(samples, sampleRate)
	text, err := c.upload(ctx, wav)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}

func (c *Client) upload(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("transcribe: write form file: %w", err)
	}
	if err := mw.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("transcribe: write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcribe: endpoint returned %d: %s", resp.StatusCode, data)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	return out.Text, nil
}
