// Package transport is a demonstration implementation of ensemble.Transport
// over golang.org/x/net/websocket. It exists to give the "remote PID" seam
// system.go defines a concrete, testable example without pulling wire
// serialization into the core runtime.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sync"

	"github.com/lguibr/ensemble"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

// wireEnvelope is the JSON shape an Envelope takes over the wire. Payload is
// carried as a tagged blob so the receiving side can reconstruct it against
// a Registry, since Go's encoding/json has no notion of interface{} payload
// types on its own.
type wireEnvelope struct {
	ID              string            `json:"id"`
	SenderID        string            `json:"sender_id,omitempty"`
	SenderAddress   string            `json:"sender_address,omitempty"`
	ReceiverID      string            `json:"receiver_id"`
	ReceiverAddress string            `json:"receiver_address"`
	PayloadType     string            `json:"payload_type"`
	Payload         json.RawMessage   `json:"payload"`
	Metadata        ensemble.Metadata `json:"metadata"`
}

// Registry maps a payload type name to the reflect.Type used to decode it
// back out of a wire envelope.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]reflect.Type)}
}

// Register associates name with the concrete type of zero, e.g.
// r.Register("ping", Ping{}).
func (r *Registry) Register(name string, zero interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = reflect.TypeOf(zero)
}

func (r *Registry) nameFor(payload interface{}) (string, bool) {
	t := reflect.TypeOf(payload)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, registered := range r.types {
		if registered == t {
			return name, true
		}
	}
	return "", false
}

func (r *Registry) decode(name string, raw json.RawMessage) (interface{}, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: payload type %q is not registered", name)
	}
	v := reflect.New(t).Interface()
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("transport: decoding %q: %w", name, err)
	}
	return reflect.ValueOf(v).Elem().Interface(), nil
}

// WebsocketTransport is a minimal ensemble.Transport: it dials a new
// connection to a remote address the first time it's needed and reuses it
// for subsequent sends. It does not support remote Spawn or Stop — those
// require a discovery/placement protocol out of scope for a demo adapter.
type WebsocketTransport struct {
	registry *Registry
	log      zerolog.Logger

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewWebsocketTransport builds a transport that names each outgoing payload
// by looking up its type in registry; payloads of unregistered types are
// refused by Send.
func NewWebsocketTransport(registry *Registry) *WebsocketTransport {
	return &WebsocketTransport{
		registry: registry,
		conns:    make(map[string]*websocket.Conn),
		log:      zerolog.Nop(),
	}
}

// SetLogger overrides the transport's logger (the zero value is silent).
func (t *WebsocketTransport) SetLogger(l zerolog.Logger) { t.log = l }

func (t *WebsocketTransport) connFor(address string) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[address]; ok {
		return conn, nil
	}
	origin := "http://localhost/"
	url := fmt.Sprintf("ws://%s/ensemble", address)
	conn, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", address, err)
	}
	t.conns[address] = conn
	return conn, nil
}

// Send implements ensemble.Transport by marshaling env to JSON and writing
// it to a (possibly newly-dialed) connection for target.Address.
func (t *WebsocketTransport) Send(target *ensemble.PID, env *ensemble.Envelope) error {
	name, ok := t.registry.nameFor(env.Payload)
	if !ok {
		return fmt.Errorf("transport: payload type %T has no registered name", env.Payload)
	}
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("transport: marshaling payload: %w", err)
	}

	wire := wireEnvelope{
		ID:              env.ID,
		ReceiverID:      target.ID,
		ReceiverAddress: target.Address,
		PayloadType:     name,
		Payload:         payload,
		Metadata:        env.Metadata,
	}
	if env.Sender != nil {
		wire.SenderID = env.Sender.ID
		wire.SenderAddress = env.Sender.Address
	}

	conn, err := t.connFor(target.Address)
	if err != nil {
		return err
	}
	if err := websocket.JSON.Send(conn, wire); err != nil {
		t.mu.Lock()
		delete(t.conns, target.Address)
		t.mu.Unlock()
		return fmt.Errorf("transport: sending to %s: %w", target.Address, err)
	}
	return nil
}

// Spawn is unimplemented: this demo adapter has no remote placement
// protocol, only message delivery to already-known remote PIDs.
func (t *WebsocketTransport) Spawn(props *ensemble.Props) (*ensemble.PID, error) {
	return nil, fmt.Errorf("transport: remote spawn is not supported by the demo websocket adapter")
}

// Stop is unimplemented for the same reason as Spawn.
func (t *WebsocketTransport) Stop(pid *ensemble.PID) error {
	return fmt.Errorf("transport: remote stop is not supported by the demo websocket adapter")
}

// Listener accepts inbound websocket connections and delivers decoded
// envelopes into a local System, playing the server-side counterpart to
// WebsocketTransport.Send.
type Listener struct {
	system   *ensemble.System
	registry *Registry
	log      zerolog.Logger
}

// NewListener builds a Listener that decodes incoming envelopes against
// registry and delivers them into system.
func NewListener(system *ensemble.System, registry *Registry) *Listener {
	return &Listener{system: system, registry: registry, log: zerolog.Nop()}
}

// SetLogger overrides the listener's logger (the zero value is silent).
func (l *Listener) SetLogger(logger zerolog.Logger) { l.log = logger }

// Handler returns an http.Handler suitable for mounting at any path; the
// demo CLI mounts it at /ensemble.
func (l *Listener) Handler() http.Handler {
	return websocket.Handler(l.serve)
}

func (l *Listener) serve(ws *websocket.Conn) {
	defer ws.Close()
	for {
		var wire wireEnvelope
		if err := websocket.JSON.Receive(ws, &wire); err != nil {
			l.log.Debug().Err(err).Msg("websocket connection closed")
			return
		}
		payload, err := l.registry.decode(wire.PayloadType, wire.Payload)
		if err != nil {
			l.log.Warn().Err(err).Str("payload_type", wire.PayloadType).Msg("dropping undecodable envelope")
			continue
		}
		target := ensemble.NewPID(wire.ReceiverID)
		var sender *ensemble.PID
		if wire.SenderID != "" {
			sender = ensemble.NewRemotePID(wire.SenderID, wire.SenderAddress)
		}
		if err := l.system.Send(target, payload, sender); err != nil {
			l.log.Debug().Err(err).Str("target", target.String()).Msg("delivery failed for remote envelope")
		}
	}
}
