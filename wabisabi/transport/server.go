// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/wabisabi/wabisabi/client"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

// errBadRequest marks request bodies that could not be decoded.
var errBadRequest = errors.New("malformed request")

// Options contains the required options for running the server.
type Options struct {
	// MaxClients is the number of requests served concurrently before
	// new ones are answered with 429.
	MaxClients int64

	// ReadTimeout bounds how long reading a request may take.
	ReadTimeout time.Duration
}

// DefaultOptions returns the options used by the daemon unless configured
// otherwise.
func DefaultOptions() *Options {
	return &Options{
		MaxClients:  1000,
		ReadTimeout: 30 * time.Second,
	}
}

// handlerFunc decodes a request body, handles it and returns the value to
// reply with, which is nil for requests without a response body.
type handlerFunc func(ctx context.Context, body []byte) (any, error)

// Server exposes a coordinator over HTTP.
type Server struct {
	httpServer http.Server
	listeners  []net.Listener

	wg      sync.WaitGroup
	quit    chan struct{}
	quitMtx sync.Mutex
}

// NewServer creates a server answering requests with handler and starts
// serving on every listener.
func NewServer(opts *Options, handler client.RequestHandler,
	listeners []net.Listener) *Server {

	serveMux := http.NewServeMux()
	server := &Server{
		httpServer: http.Server{
			Handler:     throttled(opts.MaxClients, serveMux.ServeHTTP),
			ReadTimeout: opts.ReadTimeout,
		},
		listeners: listeners,
		quit:      make(chan struct{}),
	}

	routes := map[string]handlerFunc{
		StatusPath:                 call(handler.GetStatus),
		InputRegistrationPath:      call(handler.RegisterInput),
		ConnectionConfirmationPath: call(handler.ConfirmConnection),
		InputUnregistrationPath:    notify(handler.RemoveInput),
		CredentialIssuancePath:     call(handler.ReissueCredentials),
		OutputRegistrationPath:     notify(handler.RegisterOutput),
		ReadyToSignPath:            notify(handler.ReadyToSign),
		TransactionSignaturePath:   notify(handler.SignTransaction),
	}
	for path, f := range routes {
		path, f := path, f
		serveMux.HandleFunc(path,
			func(w http.ResponseWriter, r *http.Request) {
				server.serveRequest(w, r, path, f)
			})
	}

	for _, lis := range listeners {
		server.serve(lis)
	}

	return server
}

// call adapts a request handler method with a response body.
func call[Req, Resp any](f func(context.Context, *Req) (*Resp,
	error)) handlerFunc {

	return func(ctx context.Context, body []byte) (any, error) {
		req := new(Req)
		if err := json.Unmarshal(body, req); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}

		resp, err := f(ctx, req)
		if err != nil {
			return nil, err
		}

		return resp, nil
	}
}

// notify adapts a request handler method without a response body.
func notify[Req any](f func(context.Context, *Req) error) handlerFunc {
	return func(ctx context.Context, body []byte) (any, error) {
		req := new(Req)
		if err := json.Unmarshal(body, req); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}

		return nil, f(ctx, req)
	}
}

// serve serves requests on lis. This function does not block on
// lis.Accept.
func (s *Server) serve(lis net.Listener) {
	s.wg.Add(1)
	go func() {
		log.Infof("Listening on %s", lis.Addr())
		err := s.httpServer.Serve(lis)
		log.Tracef("Finished serving requests: %v", err)
		s.wg.Done()
	}()
}

// Stop closes the listeners and waits for the requests in flight to
// finish.
func (s *Server) Stop() {
	s.quitMtx.Lock()
	select {
	case <-s.quit:
		s.quitMtx.Unlock()
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("Cannot shut down the server: %v", err)
	}

	close(s.quit)
	s.quitMtx.Unlock()

	s.wg.Wait()
}

// serveRequest decodes, handles and answers one request.
func (s *Server) serveRequest(w http.ResponseWriter, r *http.Request,
	path string, f handlerFunc) {

	if r.Method != http.MethodPost {
		http.Error(w, "405 Method Not Allowed",
			http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err != nil {
		http.Error(w, "413 Request Too Large.",
			http.StatusRequestEntityTooLarge)
		return
	}

	resp, err := f(r.Context(), body)
	switch {
	case err == nil:

	case errors.Is(err, errBadRequest):
		log.Debugf("Bad request to %v from %v: %v", path, r.RemoteAddr,
			err)
		http.Error(w, "400 Bad Request", http.StatusBadRequest)
		return

	default:
		s.writeError(w, path, err)
		return
	}

	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("Unable to marshal response to %v: %v", path, err)
		http.Error(w, "500 Internal Server Error",
			http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		log.Warnf("Unable to respond to client: %v", err)
	}
}

// writeError answers with a protocol error body, or a bare 500 for any
// other failure.
func (s *Server) writeError(w http.ResponseWriter, path string, err error) {
	perr, ok := models.AsProtocolError(err)
	if !ok {
		log.Errorf("Request to %v failed: %v", path, err)
		http.Error(w, "500 Internal Server Error",
			http.StatusInternalServerError)
		return
	}

	log.Debugf("Request to %v refused: %v", path, perr)

	data, err := json.Marshal(perr)
	if err != nil {
		log.Errorf("Unable to marshal error: %v", err)
		http.Error(w, "500 Internal Server Error",
			http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	if _, err := w.Write(data); err != nil {
		log.Warnf("Unable to respond to client: %v", err)
	}
}

// throttled wraps an http.HandlerFunc with throttling of concurrent active
// clients by responding with an HTTP 429 when the threshold is crossed.
func throttled(threshold int64, f http.HandlerFunc) http.Handler {
	var active int64

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&active, 1)
		defer atomic.AddInt64(&active, -1)

		if current-1 >= threshold {
			log.Warnf("Reached threshold of %d concurrent active "+
				"clients", threshold)
			http.Error(w, "429 Too Many Requests",
				http.StatusTooManyRequests)
			return
		}

		f(w, r)
	})
}
