package live

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/yourorg/together/internal/models"
)

// Conn es lo que el hub necesita de una conexión WebSocket
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type client struct {
	userID int64
	conn   Conn
}

type message struct {
	userID int64
	data   []byte
	sent   chan int
}

// Hub reparte eventos en vivo a las conexiones de cada usuario.
// Un usuario puede tener varias conexiones abiertas (teléfono + CLI).
type Hub struct {
	clients    map[int64]map[Conn]bool
	register   chan client
	unregister chan client
	broadcast  chan message
	done       chan struct{}
	stopOnce   sync.Once

	mu     sync.RWMutex
	counts map[int64]int
}

// NewHub crea el hub y arranca su loop
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[int64]map[Conn]bool),
		register:   make(chan client),
		unregister: make(chan client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
		counts:     make(map[int64]int),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[Conn]bool)
			}
			h.clients[c.userID][c.conn] = true
			h.setCount(c.userID)
			log.Printf("🔌 Live conectado user_id=%d. Conexiones: %d", c.userID, len(h.clients[c.userID]))

		case c := <-h.unregister:
			h.drop(c.userID, c.conn)

		case m := <-h.broadcast:
			delivered := 0
			for conn := range h.clients[m.userID] {
				if err := conn.WriteMessage(websocket.TextMessage, m.data); err != nil {
					log.Printf("⚠️  Error enviando evento en vivo a user_id=%d: %v", m.userID, err)
					h.drop(m.userID, conn)
					continue
				}
				delivered++
			}
			if m.sent != nil {
				m.sent <- delivered
			}

		case <-h.done:
			for userID, conns := range h.clients {
				for conn := range conns {
					conn.Close()
				}
				delete(h.clients, userID)
				h.setCount(userID)
			}
			return
		}
	}
}

func (h *Hub) drop(userID int64, conn Conn) {
	conns := h.clients[userID]
	if _, ok := conns[conn]; !ok {
		return
	}
	delete(conns, conn)
	conn.Close()
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
	h.setCount(userID)
	log.Printf("🔌 Live desconectado user_id=%d. Conexiones: %d", userID, len(conns))
}

func (h *Hub) setCount(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.clients[userID]); n > 0 {
		h.counts[userID] = n
	} else {
		delete(h.counts, userID)
	}
}

// Connected retorna cuántas conexiones abiertas tiene el usuario
func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[userID]
}

// Publish envía ev a las conexiones de userID sin bloquear.
// Si el canal está lleno el evento se descarta: el siguiente lo reemplaza.
func (h *Hub) Publish(userID int64, ev models.LiveEvent) {
	if h.Connected(userID) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error al serializar evento en vivo: %v", err)
		return
	}
	select {
	case h.broadcast <- message{userID: userID, data: data}:
	case <-h.done:
	default:
	}
}

// publishSync entrega ev y espera a que el loop lo procese
func (h *Hub) publishSync(userID int64, ev models.LiveEvent) int {
	data, _ := json.Marshal(ev)
	sent := make(chan int, 1)
	select {
	case h.broadcast <- message{userID: userID, data: data, sent: sent}:
	case <-h.done:
		return 0
	}
	select {
	case n := <-sent:
		return n
	case <-h.done:
		return 0
	}
}

// Serve atiende una conexión hasta que el cliente la cierra
func (h *Hub) Serve(userID int64, conn Conn) {
	select {
	case h.register <- client{userID: userID, conn: conn}:
	case <-h.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- client{userID: userID, conn: conn}:
		case <-h.done:
		}
	}()

	// El cliente no envía comandos; solo se lee para detectar el cierre
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Stop cierra todas las conexiones y detiene el loop
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
