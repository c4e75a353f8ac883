package feed

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

// atributos de evento que identificam contas
var accountAttrs = []string{"maker", "acceptor", "winner", "depositor", "user", "recipient"}

type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex // gorilla aceita um writer por vez
}

func (c *client) write(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return c.conn.WriteJSON(v)
}

// Hub gerencia conexões WebSocket e assinaturas do feed de eventos do vault
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// tópico -> conjunto de clientes
	subs map[string]map[*client]struct{}

	OnConnect    func()
	OnDisconnect func()
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer conn.Close()
	if h.OnConnect != nil {
		h.OnConnect()
	}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.Topic]; !ok {
				h.subs[msg.Topic] = make(map[*client]struct{})
			}
			h.subs[msg.Topic][c] = struct{}{}
			h.mu.Unlock()
			_ = c.write(map[string]string{"type": "subscribed", "topic": msg.Topic})
		case "unsubscribe":
			h.unsubscribe(c, msg.Topic)
		case "ping":
			_ = c.write(map[string]string{"type": "pong"})
		}
	}

	h.mu.Lock()
	for topic, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
	h.mu.Unlock()
	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
}

func (h *Hub) unsubscribe(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[topic]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Topics lista os tópicos que recebem o evento
func Topics(ev events.VaultEvent) []string {
	out := []string{TopicAll}
	if ev.BetID != 0 {
		out = append(out, "bet:"+strconv.FormatUint(ev.BetID, 10))
	}
	seen := map[string]bool{}
	for _, k := range accountAttrs {
		if v, ok := ev.Attributes[k]; ok && v != "" && !seen[v] {
			seen[v] = true
			out = append(out, "account:"+v)
		}
	}
	return out
}

// Broadcast envia o evento uma única vez para cada cliente inscrito em algum tópico dele
func (h *Hub) Broadcast(ev events.VaultEvent) int {
	targets := map[*client]struct{}{}
	h.mu.RLock()
	for _, t := range Topics(ev) {
		for c := range h.subs[t] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return 0
	}
	msg := json.RawMessage(raw)
	sent := 0
	for c := range targets {
		if err := c.write(msg); err == nil {
			sent++
		}
	}
	return sent
}
