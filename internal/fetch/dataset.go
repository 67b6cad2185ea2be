package fetch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DatasetConfig configures the batch dataset-scrape channel.
type DatasetConfig struct {
	APIKey       string
	DatasetID    string
	Endpoint     string
	PollInterval time.Duration
	MaxPolls     int
	BatchSize    int
	Timeout      time.Duration
	Logger       *zap.Logger
}

// DatasetChannel submits profile URLs to a dataset-scrape API in batches
// and polls the resulting snapshot until it is ready. It is the cheapest
// and most reliable channel, so it runs first whenever a key is configured.
type DatasetChannel struct {
	apiKey       string
	datasetID    string
	endpoint     string
	http         *http.Client
	pollInterval time.Duration
	maxPolls     int
	batchSize    int
	logger       *zap.Logger
}

// NewDataset builds the channel. Without an API key it reports unavailable
// and the chain never invokes it.
func NewDataset(cfg DatasetConfig) *DatasetChannel {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &DatasetChannel{
		apiKey:       cfg.APIKey,
		datasetID:    cfg.DatasetID,
		endpoint:     strings.TrimSuffix(cfg.Endpoint, "/"),
		http:         &http.Client{Timeout: timeout},
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		batchSize:    cfg.BatchSize,
		logger:       cfg.Logger,
	}
}

func (d *DatasetChannel) Name() string { return "dataset" }

func (d *DatasetChannel) Available() bool { return d.apiKey != "" }

func (d *DatasetChannel) MinContentLen() int { return 100 }

// Fetch acquires a single URL through the batch machinery.
func (d *DatasetChannel) Fetch(ctx context.Context, profileURL string) (string, error) {
	results, err := d.FetchBatch(ctx, []string{profileURL})
	if err != nil {
		return "", err
	}
	content, ok := results[profileURL]
	if !ok {
		return "", ErrNoContent
	}
	return content, nil
}

// FetchBatch submits urls in chunks and returns raw record text keyed by
// profile URL. Per-URL failures (warning records) are simply absent from
// the result; callers fall through to the per-URL chain for those.
func (d *DatasetChannel) FetchBatch(ctx context.Context, urls []string) (map[string]string, error) {
	out := make(map[string]string, len(urls))
	for start := 0; start < len(urls); start += d.batchSize {
		end := start + d.batchSize
		if end > len(urls) {
			end = len(urls)
		}
		chunk := urls[start:end]
		snapshotID, err := d.trigger(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("trigger dataset batch: %w", err)
		}
		records, err := d.pollSnapshot(ctx, snapshotID)
		if err != nil {
			return nil, fmt.Errorf("poll snapshot %s: %w", snapshotID, err)
		}
		d.collect(records, chunk, out)
	}
	return out, nil
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

func (d *DatasetChannel) trigger(ctx context.Context, urls []string) (string, error) {
	inputs := make([]map[string]string, len(urls))
	for i, u := range urls {
		inputs[i] = map[string]string{"url": u}
	}
	body, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}

	endpoint := fmt.Sprintf("%s/trigger?dataset_id=%s&include_errors=true", d.endpoint, d.datasetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("trigger request: status %d", resp.StatusCode)
	}

	var tr triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	if tr.SnapshotID == "" {
		return "", fmt.Errorf("trigger response missing snapshot_id")
	}
	return tr.SnapshotID, nil
}

// pollSnapshot polls until the snapshot is ready or the poll budget runs
// out. A 202 means the snapshot is still building.
func (d *DatasetChannel) pollSnapshot(ctx context.Context, snapshotID string) ([]map[string]any, error) {
	endpoint := fmt.Sprintf("%s/snapshot/%s?format=json", d.endpoint, snapshotID)
	for poll := 0; poll < d.maxPolls; poll++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build snapshot request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+d.apiKey)

		resp, err := d.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("snapshot request: %w", err)
		}
		switch resp.StatusCode {
		case http.StatusOK:
			records, err := decodeRecords(resp)
			if err != nil {
				return nil, err
			}
			return records, nil
		case http.StatusAccepted:
			resp.Body.Close()
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("snapshot request: status %d", resp.StatusCode)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("snapshot poll canceled: %w", ctx.Err())
		case <-time.After(d.pollInterval):
		}
	}
	return nil, fmt.Errorf("snapshot not ready after %d polls", d.maxPolls)
}

// decodeRecords accepts both response formats the API serves: a JSON array,
// or newline-delimited JSON objects.
func decodeRecords(resp *http.Response) ([]map[string]any, error) {
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	raw := bytes.TrimSpace(buf.Bytes())
	if len(raw) == 0 {
		return nil, nil
	}

	if raw[0] == '[' {
		var records []map[string]any
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode snapshot array: %w", err)
		}
		return records, nil
	}

	var records []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode snapshot line: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan snapshot body: %w", err)
	}
	return records, nil
}

// collect maps usable records back to their input URLs. A record carrying a
// warning is a per-URL failure; a record without an identity is noise.
func (d *DatasetChannel) collect(records []map[string]any, chunk []string, out map[string]string) {
	byPosition := 0
	for _, rec := range records {
		url := recordURL(rec)
		if url == "" && byPosition < len(chunk) {
			url = chunk[byPosition]
		}
		byPosition++

		if _, warned := rec["warning"]; warned {
			d.logger.Debug("dataset record warning", zap.String("url", url))
			continue
		}
		if _, warned := rec["warning_code"]; warned {
			d.logger.Debug("dataset record warning", zap.String("url", url))
			continue
		}
		if rec["id"] == nil && rec["name"] == nil {
			continue
		}
		body, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		out[url] = string(body)
	}
}

func recordURL(rec map[string]any) string {
	for _, key := range []string{"url", "input_url"} {
		if v, ok := rec[key].(string); ok && v != "" {
			return v
		}
	}
	if input, ok := rec["input"].(map[string]any); ok {
		if v, ok := input["url"].(string); ok {
			return v
		}
	}
	return ""
}
