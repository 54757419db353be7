package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/plugin"
)

// Options configures the realtime plugin.
type Options struct {
	// HeartbeatTimeout evicts subscribers that miss heartbeats this long.
	HeartbeatTimeout time.Duration
	// CheckOrigin overrides the upgrader's origin check when set.
	CheckOrigin func(r *http.Request) bool
}

// Plugin broadcasts mutation outcomes to hub subscribers via after-hooks
// and exposes manual broadcast and subscription management operations.
type Plugin struct {
	plugin.Base

	opts     Options
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewPlugin creates the realtime plugin.
func NewPlugin(opts Options) *Plugin {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if opts.CheckOrigin != nil {
		upgrader.CheckOrigin = opts.CheckOrigin
	}
	return &Plugin{opts: opts, upgrader: upgrader, logger: zap.NewNop()}
}

// ID implements plugin.Plugin.
func (p *Plugin) ID() string { return "realtime" }

// Init builds the hub and starts the heartbeat sweep.
func (p *Plugin) Init(_ context.Context, host *plugin.Host) error {
	p.logger = host.Logger
	p.hub = NewHub(p.opts.HeartbeatTimeout, host.Logger)
	p.hub.Start()
	return nil
}

// Destroy stops the hub.
func (p *Plugin) Destroy(context.Context) error {
	if p.hub != nil {
		p.hub.Stop()
	}
	return nil
}

// Hub returns the subscriber hub, for transports and tests.
func (p *Plugin) Hub() *Hub { return p.hub }

// Handler returns the HTTP handler that upgrades connections into hub
// subscribers. The routing layer mounts it.
func (p *Plugin) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ServeWS(p.hub, p.upgrader, p.logger, w, r)
	}
}

// Hooks broadcast every mutation outcome after it commits.
func (p *Plugin) Hooks() []plugin.Hook {
	return []plugin.Hook{
		{Type: plugin.AfterCreate, Fn: p.broadcastHook},
		{Type: plugin.AfterUpdate, Fn: p.broadcastHook},
		{Type: plugin.AfterDelete, Fn: p.broadcastHook},
	}
}

// Endpoints exposes broadcast and subscription management.
func (p *Plugin) Endpoints() []plugin.Endpoint {
	return []plugin.Endpoint{
		{Name: "realtime.broadcast", Handler: p.broadcastEndpoint},
		{Name: "realtime.subscribe", Handler: p.subscribeEndpoint},
	}
}

func (p *Plugin) broadcastHook(hc *plugin.Context) error {
	event := Event{
		Resource:  hc.Resource,
		Operation: hc.Operation,
		RecordID:  hc.RecordID,
		Timestamp: time.Now().UTC(),
	}
	if hc.Record != nil {
		event.Data = hc.Record
		if id, ok := hc.Record["id"].(string); ok {
			event.RecordID = id
		}
	}
	p.hub.Broadcast(event)
	return nil
}

// broadcastEndpoint pushes a caller-supplied event to matching subscribers.
func (p *Plugin) broadcastEndpoint(_ context.Context, payload adapter.Record) (interface{}, error) {
	resource, _ := payload["resource"].(string)
	operation, _ := payload["operation"].(string)
	if resource == "" || operation == "" {
		return nil, fmt.Errorf("%w: broadcast requires resource and operation", errs.ErrValidation)
	}

	delivered := p.hub.Broadcast(Event{
		Resource:  resource,
		Operation: operation,
		Data:      payload["data"],
		Timestamp: time.Now().UTC(),
	})
	return map[string]interface{}{"delivered": delivered}, nil
}

// subscribeEndpoint replaces the filters of an already connected subscriber.
func (p *Plugin) subscribeEndpoint(_ context.Context, payload adapter.Record) (interface{}, error) {
	id, _ := payload["subscriberId"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: subscriberId is required", errs.ErrValidation)
	}

	sub, ok := p.hub.Subscriber(id)
	if !ok {
		return nil, errs.NotFoundf("subscriber %s", id)
	}

	var subs []Subscription
	if raw, ok := payload["subscriptions"].([]interface{}); ok {
		for _, item := range raw {
			filter, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			s := Subscription{}
			if v, ok := filter["resource"].(string); ok {
				s.Resource = v
			}
			if ops, ok := filter["operations"].([]interface{}); ok {
				for _, op := range ops {
					if name, ok := op.(string); ok {
						s.Operations = append(s.Operations, name)
					}
				}
			}
			subs = append(subs, s)
		}
	}

	sub.Subscribe(subs)
	return map[string]interface{}{"subscriberId": id, "subscriptions": len(subs)}, nil
}
