package task

import (
	"fmt"
	"sync"
	"time"
)

// ClientManager manages client contexts and resources
type ClientManager struct {
	clients map[string]*ClientContext
	mu      sync.RWMutex
}

// ClientContext holds client-specific quota state
type ClientContext struct {
	ID            string
	ResourceQuota *ResourceQuota
}

// NewClientManager creates a new client manager
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*ClientContext),
	}
}

// GetClientContext gets or creates a client context
func (cm *ClientManager) GetClientContext(clientID string) (*ClientContext, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if ctx, exists := cm.clients[clientID]; exists {
		return ctx, nil
	}

	ctx := &ClientContext{
		ID:            clientID,
		ResourceQuota: NewResourceQuota(),
	}

	cm.clients[clientID] = ctx
	return ctx, nil
}

// RemoveClient removes a client context
func (cm *ClientManager) RemoveClient(clientID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, clientID)
}

// checkDailyReset resets every client's daily quota when the day rolls over
func (cm *ClientManager) checkDailyReset() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, ctx := range cm.clients {
		ctx.ResourceQuota.resetIfNewDay()
	}
}

// ResourceQuota manages per-client task limits
type ResourceQuota struct {
	MaxDailyTasks int // 每日任务配额
	MaxConcurrent int // 并发任务上限
	usedToday     int
	running       int
	lastReset     time.Time
	mu            sync.Mutex
}

// NewResourceQuota creates a new resource quota instance
func NewResourceQuota() *ResourceQuota {
	return &ResourceQuota{
		MaxDailyTasks: 200, // Default daily limit
		MaxConcurrent: 5,
		lastReset:     time.Now(),
	}
}

// TryAcquire atomically checks and claims one slot of daily quota plus one
// concurrency slot. Callers must pair it with Release or Refund.
func (rq *ResourceQuota) TryAcquire() error {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	rq.resetIfNewDayLocked()

	if rq.usedToday >= rq.MaxDailyTasks {
		return fmt.Errorf("daily task quota exceeded (%d)", rq.MaxDailyTasks)
	}
	if rq.running >= rq.MaxConcurrent {
		return fmt.Errorf("maximum concurrent tasks reached (%d)", rq.MaxConcurrent)
	}

	rq.usedToday++
	rq.running++
	return nil
}

// Release frees the concurrency slot after a task finished
func (rq *ResourceQuota) Release() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if rq.running > 0 {
		rq.running--
	}
}

// Refund returns both the concurrency slot and the daily quota, used when a
// claimed task never got to run
func (rq *ResourceQuota) Refund() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if rq.running > 0 {
		rq.running--
	}
	if rq.usedToday > 0 {
		rq.usedToday--
	}
}

func (rq *ResourceQuota) resetIfNewDay() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.resetIfNewDayLocked()
}

func (rq *ResourceQuota) resetIfNewDayLocked() {
	now := time.Now()
	if now.YearDay() != rq.lastReset.YearDay() || now.Year() != rq.lastReset.Year() {
		rq.usedToday = 0
		rq.lastReset = now
	}
}
