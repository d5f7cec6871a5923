package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// HTTPEngineConfig configures HTTPEngine, which talks to an already
// running remote inference server instead of spawning one, generalized
// from the teacher's llama-server HTTP adapter away from any
// llama.cpp-specific wire format.
type HTTPEngineConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// HTTPEngine implements Engine by delegating load/reshape/infer calls to
// a remote server reachable over HTTP.
type HTTPEngine struct {
	cfg HTTPEngineConfig
	cli *http.Client
}

// NewHTTPEngine constructs an HTTPEngine against an already-running
// remote backend.
func NewHTTPEngine(cfg HTTPEngineConfig) *HTTPEngine {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout is intentionally 0: every request below carries its own
	// context-based deadline.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &HTTPEngine{cfg: HTTPEngineConfig{
		BaseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:         cfg.APIKey,
		RequestTimeout: cfg.RequestTimeout,
	}, cli: cli}
}

type httpNetwork struct {
	e        *HTTPEngine
	remoteID string
	io       IOSpec
}

func (n *httpNetwork) Close() error { return nil }

func (e *HTTPEngine) authorize(req *http.Request) {
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
}

func (e *HTTPEngine) LoadNetwork(ctx context.Context, spec LoadSpec) (LoadedNetwork, IOSpec, error) {
	if len(spec.Files) == 0 {
		return nil, IOSpec{}, fmt.Errorf("path invalid: no remote model id given")
	}
	remoteID := spec.Files[0]
	io, err := e.fetchIO(ctx, remoteID)
	if err != nil {
		return nil, IOSpec{}, fmt.Errorf("network not loaded: %w", err)
	}
	return &httpNetwork{e: e, remoteID: remoteID, io: io}, io, nil
}

func (e *HTTPEngine) fetchIO(ctx context.Context, remoteID string) (IOSpec, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/v1/models/"+remoteID+"/io", nil)
	if err != nil {
		return IOSpec{}, err
	}
	e.authorize(req)
	resp, err := e.cli.Do(req)
	if err != nil {
		return IOSpec{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return IOSpec{}, fmt.Errorf("remote io endpoint status %d", resp.StatusCode)
	}
	var wire struct {
		Inputs  map[string]TensorSpec `json:"inputs"`
		Outputs map[string]TensorSpec `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return IOSpec{}, err
	}
	return IOSpec{Inputs: wire.Inputs, Outputs: wire.Outputs}, nil
}

func (e *HTTPEngine) GetIO(net LoadedNetwork) (IOSpec, error) {
	n, ok := net.(*httpNetwork)
	if !ok {
		return IOSpec{}, fmt.Errorf("not an http network")
	}
	return n.io, nil
}

func (e *HTTPEngine) Reshape(ctx context.Context, net LoadedNetwork, spec ReshapeSpec) error {
	n, ok := net.(*httpNetwork)
	if !ok {
		return fmt.Errorf("not an http network")
	}
	body, _ := json.Marshal(spec)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/v1/models/"+n.remoteID+"/reshape", bytes.NewReader(body))
	if err != nil {
		return err
	}
	e.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.cli.Do(req)
	if err != nil {
		return fmt.Errorf("reshape failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reshape failed: status %d", resp.StatusCode)
	}
	return nil
}

func (e *HTTPEngine) CreateInferRequest(net LoadedNetwork) (InferRequestHandle, error) {
	n, ok := net.(*httpNetwork)
	if !ok {
		return nil, fmt.Errorf("not an http network")
	}
	return &remoteInferHandle{e: e, remoteID: n.remoteID}, nil
}

type remoteInferHandle struct {
	e        *HTTPEngine
	remoteID string
}

func (h *remoteInferHandle) Infer(ctx context.Context, inputs map[string][]byte) (map[string][]byte, error) {
	if h.e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.e.cfg.RequestTimeout)
		defer cancel()
	}
	// Tensor payloads are opaque binary, not text; base64-encode each one
	// rather than converting to string, which would silently corrupt any
	// byte sequence that isn't valid UTF-8 when json.Marshal escapes it.
	wire := make(map[string]string, len(inputs))
	for k, v := range inputs {
		wire[k] = base64.StdEncoding.EncodeToString(v)
	}
	body, err := json.Marshal(map[string]any{"model": h.remoteID, "inputs": wire})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.e.cfg.BaseURL+"/v1/infer", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	h.e.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.e.cli.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote infer error: status %d", resp.StatusCode)
	}
	var out struct {
		Outputs map[string]string `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	res := make(map[string][]byte, len(out.Outputs))
	for k, v := range out.Outputs {
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("remote infer: output %q not valid base64: %w", k, err)
		}
		res[k] = decoded
	}
	return res, nil
}
