package state_machine

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"raftio/internal/raft"
)

// KVStateMachine is a simple key-value store that implements the StateMachine interface
type KVStateMachine struct {
	mu    sync.RWMutex
	store map[string]string
	id    string // Server ID for logging
}

// NewKVStateMachine creates a new key-value state machine
func NewKVStateMachine(serverID string) *KVStateMachine {
	return &KVStateMachine{
		store: make(map[string]string),
		id:    serverID,
	}
}

// Apply applies log entries to the state machine and returns one response per entry, in order.
// Commands are expected in the format: "SET key=value", "DEL key" or "GET key".
// Non-command entries (no-op, configuration) are skipped but still produce an empty response so
// the response count always equals the batch size.
func (kv *KVStateMachine) Apply(logs []raft.LogEntry) ([]raft.Response, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	responses := make([]raft.Response, 0, len(logs))
	for _, entry := range logs {
		if entry.Type != raft.LogCommand {
			responses = append(responses, raft.Response(nil))
			continue
		}
		responses = append(responses, kv.applyCommand(entry))
	}
	return responses, nil
}

// applyCommand executes a single command entry. The caller must hold kv.mu.
func (kv *KVStateMachine) applyCommand(entry raft.LogEntry) raft.Response {
	command := string(entry.Command)
	parts := strings.Fields(command)

	if len(parts) == 0 {
		return raft.Response("ERR empty command")
	}

	op := strings.ToUpper(parts[0])
	switch op {
	case "SET":
		if len(parts) < 2 {
			return raft.Response("ERR SET requires key=value")
		}
		// Parse "key=value"
		kvPair := strings.SplitN(parts[1], "=", 2)
		if len(kvPair) != 2 {
			return raft.Response("ERR SET requires key=value")
		}
		key, value := kvPair[0], kvPair[1]
		kv.store[key] = value
		log.Printf("[KV-SM-%s] Applied SET: %s=%s (index=%d)", kv.id, key, value, entry.Index)
		return raft.Response("OK")
	case "DEL":
		if len(parts) < 2 {
			return raft.Response("ERR DEL requires key")
		}
		key := parts[1]
		delete(kv.store, key)
		log.Printf("[KV-SM-%s] Applied DEL: %s (index=%d)", kv.id, key, entry.Index)
		return raft.Response("OK")
	case "GET":
		if len(parts) < 2 {
			return raft.Response("ERR GET requires key")
		}
		value, ok := kv.store[parts[1]]
		if !ok {
			return raft.Response("ERR key not found")
		}
		return raft.Response(value)
	default:
		log.Printf("[KV-SM-%s] Unknown command: %s (index=%d)", kv.id, command, entry.Index)
		return raft.Response(fmt.Sprintf("ERR unknown command %q", op))
	}
}

// Get reads a key directly, bypassing the log. Intended for tests and local inspection only;
// linearizable reads must go through the log as GET commands.
func (kv *KVStateMachine) Get(key string) (string, bool) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	value, ok := kv.store[key]
	return value, ok
}

// GetAll returns a copy of the entire key-value store. Same caveat as Get.
func (kv *KVStateMachine) GetAll() map[string]string {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	result := make(map[string]string, len(kv.store))
	for k, v := range kv.store {
		result[k] = v
	}
	return result
}
