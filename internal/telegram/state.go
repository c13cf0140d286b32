package telegram

import "sync"

type AwaitKind int

const (
	AwaitNone AwaitKind = iota
	AwaitFeedback
	AwaitQuantity
	AwaitSingleImagePrompt
	AwaitMultiImagePrompt
)

// Await says how the next free-text message from a user is interpreted,
// together with any buffered payload. Exactly one await is active per user:
// setting a new one replaces the previous, so two interpretations can never
// apply at once.
type Await struct {
	Kind   AwaitKind
	Image  []byte
	Images [][]byte
}

// StateManager tracks per-user conversation state in memory. It is not
// persisted; a restart drops all pending awaits and selections.
type StateManager struct {
	mu     sync.Mutex
	awaits map[int64]Await
	models map[int64]string
}

func NewStateManager() *StateManager {
	return &StateManager{
		awaits: make(map[int64]Await),
		models: make(map[int64]string),
	}
}

// Take pops the user's pending await. The state is cleared before the caller
// acts on it, so a failing handler cannot leave the flag dangling.
func (m *StateManager) Take(userID int64) Await {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.awaits[userID]
	if !ok {
		return Await{Kind: AwaitNone}
	}
	delete(m.awaits, userID)
	return a
}

func (m *StateManager) Set(userID int64, a Await) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Kind == AwaitNone {
		delete(m.awaits, userID)
		return
	}
	m.awaits[userID] = a
}

func (m *StateManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.awaits, userID)
}

// SelectModel remembers the user's model choice. The selection survives
// await transitions and resets.
func (m *StateManager) SelectModel(userID int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[userID] = name
}

// SelectedModel returns the user's chosen model, or "" for the default.
func (m *StateManager) SelectedModel(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.models[userID]
}
