// Package capture feeds the lifecycle controller from a Chrome DevTools
// Protocol connection instead of the HTTP ingest routes.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/lifecycle"
)

// maxBodyBytes caps captured request and response bodies.
const maxBodyBytes = 1 << 20

// Handler receives observed traffic. *lifecycle.Controller implements it.
type Handler interface {
	HandleRequest(ev lifecycle.RequestEvent) (string, bool)
	HandleResponse(ev lifecycle.ResponseEvent) bool
}

// bodyFetcher reads a finished response body for a request.
type bodyFetcher func(id proto.NetworkRequestID) ([]byte, error)

// Source watches every page target of a browser. Each target is given a
// stable tab id for the lifetime of the Source.
type Source struct {
	controlURL string
	handler    Handler
	logger     *zap.Logger

	mu       sync.Mutex
	tabs     map[proto.TargetTargetID]int
	nextTab  int
	inflight map[proto.NetworkRequestID]*inflight
}

// inflight is a tracked request waiting for its response to finish.
type inflight struct {
	url     string
	tabID   int
	status  int
	headers http.Header
}

func NewSource(controlURL string, handler Handler, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		controlURL: controlURL,
		handler:    handler,
		logger:     logger,
		tabs:       make(map[proto.TargetTargetID]int),
		inflight:   make(map[proto.NetworkRequestID]*inflight),
	}
}

// Run connects to the browser and captures until ctx is done. The browser
// itself is left running.
func (s *Source) Run(ctx context.Context) error {
	browser := rod.New().ControlURL(s.controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("capture: connect to browser: %w", err)
	}
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		return fmt.Errorf("capture: discover targets: %w", err)
	}

	pages, err := browser.Pages()
	if err != nil {
		return fmt.Errorf("capture: list pages: %w", err)
	}
	for _, page := range pages {
		s.attach(ctx, page)
	}
	s.logger.Info("browser capture started", zap.Int("pages", len(pages)))

	wait := browser.EachEvent(
		func(ev *proto.TargetTargetCreated) {
			if ev.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				return
			}
			go func() {
				page, err := browser.PageFromTarget(ev.TargetInfo.TargetID)
				if err != nil {
					s.logger.Warn("attach to new page failed", zap.Error(err))
					return
				}
				s.attach(ctx, page)
			}()
		},
		func(ev *proto.TargetTargetDestroyed) {
			s.forgetTarget(ev.TargetID)
		},
	)
	wait()
	return ctx.Err()
}

// attach subscribes to the network events of page. EachEvent enables the
// Network domain on the page.
func (s *Source) attach(ctx context.Context, page *rod.Page) {
	tabID := s.tabFor(page.TargetID)
	page = page.Context(ctx)
	fetch := func(id proto.NetworkRequestID) ([]byte, error) {
		res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
		if err != nil {
			return nil, err
		}
		if res.Base64Encoded {
			return base64.StdEncoding.DecodeString(res.Body)
		}
		return []byte(res.Body), nil
	}

	wait := page.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) { s.onRequest(tabID, ev) },
		func(ev *proto.NetworkResponseReceived) { s.onResponse(ev) },
		func(ev *proto.NetworkLoadingFinished) { go s.onFinished(ev, fetch) },
		func(ev *proto.NetworkLoadingFailed) { s.onFailed(ev) },
	)
	go wait()
	s.logger.Debug("page attached", zap.Int("tab_id", tabID), zap.String("target_id", string(page.TargetID)))
}

// tabFor returns the tab id of target, assigning the next one on first use.
func (s *Source) tabFor(target proto.TargetTargetID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.tabs[target]; ok {
		return id
	}
	s.nextTab++
	s.tabs[target] = s.nextTab
	return s.nextTab
}

// forgetTarget drops a closed target's tab id and its tracked requests. Their
// interactions stay pending until swept.
func (s *Source) forgetTarget(target proto.TargetTargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tabID, ok := s.tabs[target]
	if !ok {
		return
	}
	delete(s.tabs, target)
	for id, req := range s.inflight {
		if req.tabID == tabID {
			delete(s.inflight, id)
		}
	}
}

func (s *Source) onRequest(tabID int, ev *proto.NetworkRequestWillBeSent) {
	if ev.Request == nil {
		return
	}
	s.mu.Lock()
	_, seen := s.inflight[ev.RequestID]
	s.mu.Unlock()
	if seen {
		// A redirect reuses the request id of the tracked request.
		return
	}

	_, tracked := s.handler.HandleRequest(lifecycle.RequestEvent{
		RequestID: string(ev.RequestID),
		URL:       ev.Request.URL,
		TabID:     tabID,
		Method:    ev.Request.Method,
		Body:      s.truncate("request", ev.RequestID, []byte(ev.Request.PostData)),
	})
	if !tracked {
		return
	}
	s.mu.Lock()
	s.inflight[ev.RequestID] = &inflight{url: ev.Request.URL, tabID: tabID}
	s.mu.Unlock()
}

func (s *Source) onResponse(ev *proto.NetworkResponseReceived) {
	if ev.Response == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.inflight[ev.RequestID]
	if !ok {
		return
	}
	req.status = ev.Response.Status
	if len(ev.Response.Headers) > 0 {
		req.headers = make(http.Header, len(ev.Response.Headers))
		for k, v := range ev.Response.Headers {
			req.headers.Set(k, v.String())
		}
	}
}

func (s *Source) onFinished(ev *proto.NetworkLoadingFinished, fetch bodyFetcher) {
	s.mu.Lock()
	req, ok := s.inflight[ev.RequestID]
	delete(s.inflight, ev.RequestID)
	s.mu.Unlock()
	if !ok {
		return
	}

	body, err := fetch(ev.RequestID)
	if err != nil {
		// Streamed or evicted bodies cannot be read back; complete without one.
		s.logger.Debug("response body unavailable",
			zap.String("request_id", string(ev.RequestID)),
			zap.Error(err),
		)
		body = nil
	}
	s.handler.HandleResponse(lifecycle.ResponseEvent{
		RequestID:  string(ev.RequestID),
		URL:        req.url,
		TabID:      req.tabID,
		StatusCode: req.status,
		Headers:    req.headers,
		Body:       s.truncate("response", ev.RequestID, body),
	})
}

// onFailed forgets the request. Its interaction stays pending until swept.
func (s *Source) onFailed(ev *proto.NetworkLoadingFailed) {
	s.mu.Lock()
	_, ok := s.inflight[ev.RequestID]
	delete(s.inflight, ev.RequestID)
	s.mu.Unlock()
	if ok {
		s.logger.Debug("tracked request failed",
			zap.String("request_id", string(ev.RequestID)),
			zap.String("error", ev.ErrorText),
		)
	}
}

// Inflight returns how many tracked requests await completion.
func (s *Source) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// truncate caps a captured body at maxBodyBytes. A cut JSON body no longer
// parses and scores as empty, so every cut is logged.
func (s *Source) truncate(kind string, id proto.NetworkRequestID, b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	if len(b) > maxBodyBytes {
		s.logger.Debug("captured body truncated",
			zap.String("body", kind),
			zap.String("request_id", string(id)),
			zap.Int("size", len(b)),
			zap.Int("limit", maxBodyBytes),
		)
		return b[:maxBodyBytes]
	}
	return b
}
