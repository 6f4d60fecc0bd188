package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"dispense/internal/ledger"
	"dispense/internal/money"
)

// AllAccounts subscribes to updates for every account.
const AllAccounts = "*"

type BalanceUpdate struct {
	Account      string `json:"account"`
	Balance      string `json:"balance"`
	BalanceMinor int64  `json:"balance_minor"`
	TransferID   string `json:"transfer_id"`
	Reason       string `json:"reason"`
}

// Hub fans balance changes out to websocket subscribers, keyed by account
// name.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(account string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[account] == nil {
		h.clients[account] = make(map[*Client]struct{})
	}
	h.clients[account][client] = struct{}{}
}

func (h *Hub) Unregister(account string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[account] == nil {
		return
	}
	delete(h.clients[account], client)
	if len(h.clients[account]) == 0 {
		delete(h.clients, account)
	}
}

// BroadcastBalance queues update for the account's subscribers and for
// AllAccounts subscribers. Slow clients miss updates rather than block.
func (h *Hub) BroadcastBalance(update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range []string{update.Account, AllAccounts} {
		for client := range h.clients[key] {
			select {
			case client.send <- payload:
			default:
			}
		}
	}
}

// TransferCommitted pushes the new balance of both sides of a transfer.
func (h *Hub) TransferCommitted(_ context.Context, event ledger.TransferEvent) {
	rec := event.Record
	h.BroadcastBalance(BalanceUpdate{
		Account:      event.SourceName,
		Balance:      money.FormatMinor(rec.SourceAfter),
		BalanceMinor: rec.SourceAfter,
		TransferID:   rec.ID,
		Reason:       rec.Reason,
	})
	h.BroadcastBalance(BalanceUpdate{
		Account:      event.DestName,
		Balance:      money.FormatMinor(rec.DestAfter),
		BalanceMinor: rec.DestAfter,
		TransferID:   rec.ID,
		Reason:       rec.Reason,
	})
}

func (h *Hub) Subscribers(account string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[account])
}
