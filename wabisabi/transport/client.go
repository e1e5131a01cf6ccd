// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/wabisabi/client"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"golang.org/x/net/proxy"
)

// ErrUnexpectedResponse is returned when the coordinator answers with
// something other than a result or a protocol error.
var ErrUnexpectedResponse = errors.New("unexpected response")

// ClientConfig configures the connection to a coordinator.
type ClientConfig struct {
	// URL is the coordinator's base URL, e.g. http://127.0.0.1:37127.
	URL string

	// Proxy is the address of a SOCKS5 proxy all requests are sent
	// through. Requests are sent directly when empty.
	Proxy string

	// ProxyUser and ProxyPass authenticate with the proxy.
	ProxyUser string
	ProxyPass string

	// IsolateStreams makes every client use its own random proxy
	// credentials so Tor routes its requests over a distinct circuit.
	IsolateStreams bool

	// Timeout bounds every request. Zero means no limit besides the
	// request's context.
	Timeout time.Duration
}

// Client sends requests to a coordinator over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// A compile-time assertion to ensure that Client implements
// client.RequestHandler.
var _ client.RequestHandler = (*Client)(nil)

// NewClient creates a client for the coordinator described by cfg.
func NewClient(cfg *ClientConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid coordinator url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid coordinator url %q: unsupported "+
			"scheme", cfg.URL)
	}

	transport := &http.Transport{
		Proxy:             nil,
		DisableKeepAlives: cfg.Proxy != "",
	}

	if cfg.Proxy != "" {
		dial, err := socksDialer(cfg)
		if err != nil {
			return nil, err
		}
		transport.DialContext = dial
	}

	return &Client{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// socksDialer returns a dial function connecting through the configured
// SOCKS5 proxy.
func socksDialer(cfg *ClientConfig) (func(context.Context, string,
	string) (net.Conn, error), error) {

	var auth *proxy.Auth
	switch {
	case cfg.IsolateStreams:
		var b [16]byte
		randomness.NewSecureRandom().GetBytes(b[:])
		auth = &proxy.Auth{
			User:     fmt.Sprintf("%x", b[:8]),
			Password: fmt.Sprintf("%x", b[8:]),
		}

	case cfg.ProxyUser != "" || cfg.ProxyPass != "":
		auth = &proxy.Auth{User: cfg.ProxyUser, Password: cfg.ProxyPass}
	}

	dialer, err := proxy.SOCKS5("tcp", cfg.Proxy, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("unable to create proxy dialer: %w", err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy dialer %T does not support "+
			"contexts", dialer)
	}

	return contextDialer.DialContext, nil
}

// send posts req to path and decodes the answer into resp, which may be
// nil for requests without a response body.
func (c *Client) send(ctx context.Context, path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Tracef("Sending request to %v", path)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxRequestSize))
	if err != nil {
		return fmt.Errorf("unable to read response of %v: %w", path, err)
	}

	switch httpResp.StatusCode {
	case http.StatusOK:
		if resp == nil {
			return nil
		}
		if err := json.Unmarshal(data, resp); err != nil {
			return fmt.Errorf("%w from %v: %v",
				ErrUnexpectedResponse, path, err)
		}

		return nil

	case http.StatusInternalServerError:
		perr := &models.ProtocolError{}
		if err := json.Unmarshal(data, perr); err == nil {
			return perr
		}
	}

	return fmt.Errorf("%w from %v: %v: %s", ErrUnexpectedResponse, path,
		httpResp.Status, bytes.TrimSpace(data))
}

// GetStatus implements the client.RequestHandler interface.
func (c *Client) GetStatus(ctx context.Context,
	req *models.RoundStateRequest) (*models.RoundStateResponse, error) {

	resp := &models.RoundStateResponse{}
	if err := c.send(ctx, StatusPath, req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// RegisterInput implements the client.RequestHandler interface.
func (c *Client) RegisterInput(ctx context.Context,
	req *models.InputRegistrationRequest) (
	*models.InputRegistrationResponse, error) {

	resp := &models.InputRegistrationResponse{}
	err := c.send(ctx, InputRegistrationPath, req, resp)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// ConfirmConnection implements the client.RequestHandler interface.
func (c *Client) ConfirmConnection(ctx context.Context,
	req *models.ConnectionConfirmationRequest) (
	*models.ConnectionConfirmationResponse, error) {

	resp := &models.ConnectionConfirmationResponse{}
	err := c.send(ctx, ConnectionConfirmationPath, req, resp)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// RemoveInput implements the client.RequestHandler interface.
func (c *Client) RemoveInput(ctx context.Context,
	req *models.InputsRemovalRequest) error {

	return c.send(ctx, InputUnregistrationPath, req, nil)
}

// RegisterOutput implements the client.RequestHandler interface.
func (c *Client) RegisterOutput(ctx context.Context,
	req *models.OutputRegistrationRequest) error {

	return c.send(ctx, OutputRegistrationPath, req, nil)
}

// ReissueCredentials implements the client.RequestHandler interface.
func (c *Client) ReissueCredentials(ctx context.Context,
	req *models.ReissueCredentialRequest) (
	*models.ReissueCredentialResponse, error) {

	resp := &models.ReissueCredentialResponse{}
	err := c.send(ctx, CredentialIssuancePath, req, resp)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// ReadyToSign implements the client.RequestHandler interface.
func (c *Client) ReadyToSign(ctx context.Context,
	req *models.ReadyToSignRequestRequest) error {

	return c.send(ctx, ReadyToSignPath, req, nil)
}

// SignTransaction implements the client.RequestHandler interface.
func (c *Client) SignTransaction(ctx context.Context,
	req *models.TransactionSignaturesRequest) error {

	return c.send(ctx, TransactionSignaturePath, req, nil)
}
