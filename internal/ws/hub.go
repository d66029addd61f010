package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"xepbot/internal/logger"
	"xepbot/internal/service"
)

const (
	TypePaymentConfirmed = "payment_confirmed"
	TypeRewardAccrued    = "reward_accrued"
)

// Message - событие для web app
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub держит открытые соединения по user id. У пользователя может быть несколько вкладок.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	log     *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		log:     logger.With("component", "ws_hub"),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	h.log.Debug("client registered", "user_id", c.UserID, "connections", len(set))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.Send)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	h.log.Debug("client unregistered", "user_id", c.UserID)
}

// Online - число пользователей с открытым соединением
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish отправляет сообщение всем соединениям пользователя, возвращает число доставленных.
// Медленный клиент с заполненным буфером пропускает сообщение.
func (h *Hub) Publish(userID int64, msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal ws message", "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients[userID] {
		select {
		case c.Send <- data:
			sent++
		default:
			h.log.Warn("ws send buffer full, dropping message", "user_id", userID, "type", msg.Type)
		}
	}
	return sent
}

// NotifyConfirmation - callback для Reconciler.OnConfirmed
func (h *Hub) NotifyConfirmation(conf service.Confirmation) {
	h.Publish(conf.UserID, Message{Type: TypePaymentConfirmed, Data: conf})
	if conf.RewardID != 0 {
		h.Publish(conf.ReferrerID, Message{Type: TypeRewardAccrued, Data: map[string]interface{}{
			"reward_id":  conf.RewardID,
			"amount":     conf.RewardAmount,
			"payment_id": conf.PaymentID,
		}})
	}
}

// Close закрывает все соединения
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, set := range h.clients {
		for c := range set {
			close(c.Send)
		}
		delete(h.clients, userID)
	}
}
