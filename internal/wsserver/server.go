// Package wsserver pushes NamedState updates to browser clients over a
// gorilla/websocket connection: one frame channel draining into a single
// send loop per connection, with a periodic ping to detect dead peers.
package wsserver

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jixoai/openspecui-kernel/internal/kernel"
	"github.com/jixoai/openspecui-kernel/internal/reactive"
	"github.com/jixoai/openspecui-kernel/internal/subscription"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame is one pushed update. Exactly one of Value/Error is populated.
type Frame struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// request is a client->server control message.
type request struct {
	Op         string `json:"op"` // "subscribe" or "unsubscribe"
	Key        string `json:"key"`
	ChangeID   string `json:"changeId,omitempty"`
	Artifact   string `json:"artifact,omitempty"`
	Schema     string `json:"schema,omitempty"`
	OutputPath string `json:"outputPath,omitempty"`
}

// Handler serves one websocket connection per HTTP request, each backed by
// its own set of subscriptions against k.
type Handler struct {
	k *kernel.Kernel
}

func NewHandler(k *kernel.Kernel) *Handler {
	return &Handler{k: k}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsserver: upgrade failed: %v", err)
		return
	}
	newConnection(h.k, conn).run()
}

type connection struct {
	id        string
	k         *kernel.Kernel
	ws        *websocket.Conn
	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]func()
}

func newConnection(k *kernel.Kernel, ws *websocket.Conn) *connection {
	return &connection{
		id:     uuid.NewString(),
		k:      k,
		ws:     ws,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
		subs:   make(map[string]func()),
	}
}

func (c *connection) run() {
	log.Printf("wsserver: connection %s opened", c.id)
	go c.sendLoop()
	c.readLoop()
	c.stop()
	log.Printf("wsserver: connection %s closed", c.id)
}

func (c *connection) readLoop() {
	for {
		var req request
		if err := c.ws.ReadJSON(&req); err != nil {
			return
		}
		switch req.Op {
		case "subscribe":
			c.subscribe(req)
		case "unsubscribe":
			c.unsubscribe(req.Key)
		}
	}
}

func (c *connection) sendLoop() {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.frames:
			if err := c.ws.WriteJSON(f); err != nil {
				c.stop()
				return
			}
		case <-ping.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				c.stop()
				return
			}
		}
	}
}

func (c *connection) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
		c.mu.Lock()
		subs := c.subs
		c.subs = nil
		c.mu.Unlock()
		for _, unsub := range subs {
			unsub()
		}
	})
}

func (c *connection) emit(key string, value any, err error) {
	f := Frame{Key: key}
	if err != nil {
		f.Error = err.Error()
	} else {
		f.Value = value
	}
	select {
	case c.frames <- f:
	case <-c.done:
	}
}

func (c *connection) subscribe(req request) {
	if req.Key == "" {
		return
	}
	c.mu.Lock()
	if _, exists := c.subs[req.Key]; exists {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	unsub, err := resolve(c.k, req, func(v any) {
		c.emit(req.Key, v, nil)
	}, func(err error) {
		c.emit(req.Key, nil, err)
	})
	if err != nil {
		c.emit(req.Key, nil, err)
		return
	}

	c.mu.Lock()
	if c.subs == nil {
		c.mu.Unlock()
		unsub()
		return
	}
	c.subs[req.Key] = unsub
	c.mu.Unlock()
}

func (c *connection) unsubscribe(key string) {
	c.mu.Lock()
	unsub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()
	if ok {
		unsub()
	}
}

// resolve maps a subscribe request's key onto the Kernel's NamedState
// catalogue and wires a Subscription Bridge against it. Each NamedState has
// its own Go type, so the match itself has to happen per-case; subscribeAs
// erases that type down to the any-typed onData/onError this package works
// with once a Bridge is in hand.
func resolve(k *kernel.Kernel, req request, onData func(any), onError func(error)) (func(), error) {
	switch req.Key {
	case "schemas":
		return subscribeAs(k.EnsureSchemas(), onData, onError), nil
	case "changeIds":
		return subscribeAs(k.EnsureChangeIds(), onData, onError), nil
	case "statusList":
		return subscribeAs(k.EnsureStatusList(), onData, onError), nil
	case "projectConfig":
		return subscribeAs(k.EnsureProjectConfig(), onData, onError), nil
	case "schemaDetail":
		return subscribeAs(k.EnsureSchemaDetail(req.Schema), onData, onError), nil
	case "schemaResolution":
		return subscribeAs(k.EnsureSchemaResolution(req.Schema), onData, onError), nil
	case "schemaFiles":
		return subscribeAs(k.EnsureSchemaFiles(req.Schema), onData, onError), nil
	case "schemaYaml":
		return subscribeAs(k.EnsureSchemaYaml(req.Schema), onData, onError), nil
	case "templates":
		return subscribeAs(k.EnsureSchemaTemplates(req.Schema), onData, onError), nil
	case "templateContents":
		return subscribeAs(k.EnsureSchemaTemplateContents(req.Schema), onData, onError), nil
	case "changeMetadata":
		return subscribeAs(k.EnsureChangeMetadata(req.ChangeID), onData, onError), nil
	case "status":
		return subscribeAs(k.EnsureChangeStatus(req.ChangeID, req.Schema), onData, onError), nil
	case "instructions":
		return subscribeAs(k.EnsureChangeInstructions(req.ChangeID, req.Artifact, req.Schema), onData, onError), nil
	case "applyInstructions":
		return subscribeAs(k.EnsureChangeApplyInstructions(req.ChangeID, req.Schema), onData, onError), nil
	case "artifactOutput":
		return subscribeAs(k.EnsureArtifactOutput(req.ChangeID, req.OutputPath), onData, onError), nil
	case "globArtifactFiles":
		return subscribeAs(k.EnsureGlobArtifactFiles(req.ChangeID, req.OutputPath), onData, onError), nil
	default:
		return nil, &unknownKeyError{key: req.Key}
	}
}

// subscribeAs wraps eff in a non-owning Subscription Bridge (the Kernel
// keeps it alive, not this connection) and forwards every delivered value
// or error through the any-typed callbacks a websocket connection uses
// regardless of which NamedState it is watching.
func subscribeAs[T any](eff *reactive.Effect[T], onData func(any), onError func(error)) func() {
	bridge := subscription.New(eff, false)
	return bridge.Subscribe(subscription.Handlers[T]{
		OnData:  func(v T) { onData(v) },
		OnError: onError,
	})
}

type unknownKeyError struct{ key string }

func (e *unknownKeyError) Error() string { return "wsserver: unknown subscription key " + e.key }
