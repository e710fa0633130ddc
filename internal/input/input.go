package input

import "sync"

// Intent is the set of movement keys a client reports as held.
type Intent struct {
	Up    bool
	Down  bool
	Left  bool
	Right bool
}

func (i Intent) Idle() bool {
	return !i.Up && !i.Down && !i.Left && !i.Right
}

// Gate stores the most recent intent per player. Updates overwrite and are
// never queued.
type Gate struct {
	intents map[string]Intent
	mu      sync.RWMutex
}

func NewGate() *Gate {
	return &Gate{intents: make(map[string]Intent)}
}

func (g *Gate) SetIntent(playerID string, intent Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[playerID] = intent
}

func (g *Gate) Intent(playerID string) Intent {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.intents[playerID]
}

func (g *Gate) Remove(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.intents, playerID)
}

func (g *Gate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.intents)
}
