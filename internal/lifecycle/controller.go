// Package lifecycle drives an AI interaction from the observed request to
// the completed analysis.
package lifecycle

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
	"github.com/sumitx99/ethical-web-watchdog/internal/message"
	"github.com/sumitx99/ethical-web-watchdog/internal/schedule"
	"github.com/sumitx99/ethical-web-watchdog/internal/scoring"
	"github.com/sumitx99/ethical-web-watchdog/internal/storage"
)

const (
	DefaultRetention     = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// RequestEvent is an outbound request seen by an ingest path.
type RequestEvent struct {
	// RequestID is the platform's id for the request, when it has one.
	RequestID string
	URL       string
	TabID     int
	Method    string
	Body      []byte
}

// ResponseEvent is a completed response seen by an ingest path.
type ResponseEvent struct {
	RequestID  string
	URL        string
	TabID      int
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Deliverer pushes a message to a tab without blocking.
type Deliverer interface {
	Deliver(tabID int, msg message.Envelope)
}

// Policy gates tracking and push notifications from user settings.
type Policy interface {
	Track(service classifier.Service) bool
	Notify() bool
}

type allowAll struct{}

func (allowAll) Track(classifier.Service) bool { return true }
func (allowAll) Notify() bool                  { return true }

type Options struct {
	Retention     time.Duration
	SweepInterval time.Duration
}

// Controller owns the request/response state machine. It is safe for
// concurrent use: correlation and mutation happen under the store lock.
type Controller struct {
	store      *interaction.Store
	classifier *classifier.Classifier
	deliverer  Deliverer
	writer     storage.EventWriter
	policy     Policy
	sched      *schedule.Scheduler
	logger     *zap.Logger

	retention     time.Duration
	sweepInterval time.Duration
	sweepTask     *schedule.Task
}

type Dependencies struct {
	Store      *interaction.Store
	Classifier *classifier.Classifier
	Deliverer  Deliverer
	Writer     storage.EventWriter
	Policy     Policy
	Scheduler  *schedule.Scheduler
	Logger     *zap.Logger
}

func NewController(deps Dependencies, opts Options) *Controller {
	if deps.Classifier == nil {
		deps.Classifier = classifier.New()
	}
	if deps.Policy == nil {
		deps.Policy = allowAll{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Writer == nil {
		deps.Writer = storage.NewLogWriter(deps.Logger)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = schedule.New(nil)
	}
	if deps.Store == nil {
		deps.Store = interaction.NewStore(deps.Scheduler.Clock())
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	return &Controller{
		store:         deps.Store,
		classifier:    deps.Classifier,
		deliverer:     deps.Deliverer,
		writer:        deps.Writer,
		policy:        deps.Policy,
		sched:         deps.Scheduler,
		logger:        deps.Logger,
		retention:     opts.Retention,
		sweepInterval: opts.SweepInterval,
	}
}

func (c *Controller) Store() *interaction.Store { return c.store }

// HandleRequest starts tracking ev if it targets a known AI service. It
// returns the new interaction id and whether the request is tracked.
func (c *Controller) HandleRequest(ev RequestEvent) (string, bool) {
	service := c.classifier.Classify(ev.URL)
	if service == classifier.Unknown {
		return "", false
	}
	if !c.policy.Track(service) {
		c.logger.Debug("tracking disabled for service", zap.String("service", string(service)))
		return "", false
	}

	now := c.sched.Clock().Now()
	entry := interaction.Interaction{
		URL:        ev.URL,
		TabID:      ev.TabID,
		Service:    service,
		RequestKey: ev.RequestID,
		Request:    &interaction.RequestSnapshot{Method: ev.Method, Body: ev.Body},
	}
	partial := scoring.Partial(scoring.InputFor(entry), now)
	entry.Analysis = &partial

	id := c.store.Create(entry)
	c.logger.Info("ai interaction detected",
		zap.String("interaction_id", id),
		zap.String("service", string(service)),
		zap.Int("tab_id", ev.TabID),
	)

	c.notify(ev.TabID, message.InteractionDetected(id, service))
	c.notify(ev.TabID, message.AnalysisUpdate(id, &partial))
	c.record(id, ev.TabID, service, ev.URL, &partial)
	return id, true
}

// HandleResponse completes the interaction ev belongs to. Responses with no
// pending match, or whose match has no analysis yet, are ignored.
func (c *Controller) HandleResponse(ev ResponseEvent) bool {
	now := c.sched.Clock().Now()
	snapshot := &interaction.ResponseSnapshot{
		StatusCode: ev.StatusCode,
		Headers:    ev.Headers,
		Body:       ev.Body,
		ObservedAt: now,
	}

	done, ok := c.store.CompletePending(ev.URL, ev.RequestID, func(it *interaction.Interaction) bool {
		if it.Analysis == nil {
			return false
		}
		it.Response = snapshot
		it.Status = interaction.StatusComplete
		completed := scoring.Complete(*it.Analysis, scoring.InputFor(*it), now)
		it.Analysis = &completed
		return true
	})
	if !ok {
		c.logger.Debug("response without pending interaction", zap.String("url", ev.URL))
		return false
	}

	c.logger.Info("ai interaction complete",
		zap.String("interaction_id", done.ID),
		zap.String("service", string(done.Service)),
		zap.Float64("overall", scoring.Overall(*done.Analysis)),
	)
	c.notify(done.TabID, message.AnalysisComplete(done.ID, done.Analysis))
	c.record(done.ID, done.TabID, done.Service, done.URL, done.Analysis)
	return true
}

// Sweep drops interactions older than the retention window.
func (c *Controller) Sweep() int {
	n := c.store.SweepExpired(c.retention)
	if n > 0 {
		c.logger.Debug("swept expired interactions", zap.Int("removed", n), zap.Int("remaining", c.store.Len()))
	}
	return n
}

// Start schedules the periodic sweep. It stops when ctx is done or Stop is
// called.
func (c *Controller) Start(ctx context.Context) {
	c.sweepTask = c.sched.Every(c.sweepInterval, func() { c.Sweep() })
	if c.sweepTask == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			c.sweepTask.Cancel()
		case <-c.sweepTask.Done():
		}
	}()
}

func (c *Controller) Stop() {
	c.sweepTask.Cancel()
}

func (c *Controller) notify(tabID int, msg message.Envelope) {
	if c.deliverer == nil || !c.policy.Notify() {
		return
	}
	c.deliverer.Deliver(tabID, msg)
}

func (c *Controller) record(id string, tabID int, service classifier.Service, url string, r *interaction.AnalysisResult) {
	c.writer.Write(storage.NewAnalysisEvent(id, tabID, string(service), url, r))
}
