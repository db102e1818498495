// Package registry maps tracked wallet addresses to the recipients subscribed to them.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"walletTracker/internal/model"
)

// Entry is one tracked wallet and its recipients.
type Entry struct {
	Address    string   `json:"address"`
	Recipients []string `json:"recipients"`
}

type wallets map[model.Network]map[string][]string

// Registry is a JSON-file backed wallet registry, safe for concurrent use.
type Registry struct {
	path string

	mu   sync.RWMutex
	data wallets
}

// Open loads the registry at path. A missing file yields an empty registry.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, data: wallets{}}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("stat registry: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("registry path is a directory")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var decoded map[string]map[string][]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	for networkName, entries := range decoded {
		network, err := model.ParseNetwork(networkName)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		for address, recipients := range entries {
			normalized, err := NormalizeAddress(address)
			if err != nil {
				return nil, fmt.Errorf("registry %s: %w", network, err)
			}
			for _, recipient := range recipients {
				r.add(network, normalized, recipient)
			}
		}
	}
	return r, nil
}

// NormalizeAddress validates a hex address and lower-cases it.
func NormalizeAddress(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return "", fmt.Errorf("invalid address: %s", input)
	}
	return strings.ToLower(common.HexToAddress(input).Hex()), nil
}

func normalizeOrEmpty(address string) string {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return ""
	}
	return normalized
}

// Recipients returns a copy of the recipients tracking address on network.
func (r *Registry) Recipients(network model.Network, address string) []string {
	address = normalizeOrEmpty(address)
	if address == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.data[network][address]...)
}

// Tracked reports whether anyone tracks address on network.
func (r *Registry) Tracked(network model.Network, address string) bool {
	return len(r.Recipients(network, address)) > 0
}

// Add subscribes recipient to address and saves the registry. It reports whether anything changed.
func (r *Registry) Add(network model.Network, address, recipient string) (bool, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return false, fmt.Errorf("recipient is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.add(network, normalized, recipient) {
		return false, nil
	}
	return true, r.save()
}

// Remove unsubscribes recipient from address, or drops the wallet entirely when recipient is empty.
func (r *Registry) Remove(network model.Network, address, recipient string) (bool, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	recipient = strings.TrimSpace(recipient)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.data[network][normalized]
	if !ok {
		return false, nil
	}
	if recipient == "" {
		delete(r.data[network], normalized)
		return true, r.save()
	}

	kept := current[:0:0]
	for _, existing := range current {
		if existing != recipient {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(current) {
		return false, nil
	}
	if len(kept) == 0 {
		delete(r.data[network], normalized)
	} else {
		r.data[network][normalized] = kept
	}
	return true, r.save()
}

// List returns the wallets tracked on network sorted by address.
func (r *Registry) List(network model.Network) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.data[network]))
	for address, recipients := range r.data[network] {
		out = append(out, Entry{Address: address, Recipients: append([]string(nil), recipients...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// add must be called with r.mu held (or before r is shared).
func (r *Registry) add(network model.Network, address, recipient string) bool {
	entries, ok := r.data[network]
	if !ok {
		entries = make(map[string][]string)
		r.data[network] = entries
	}
	for _, existing := range entries[address] {
		if existing == recipient {
			return false
		}
	}
	entries[address] = append(entries[address], recipient)
	return true
}

// save writes the registry atomically through a temporary file.
func (r *Registry) save() error {
	dir := filepath.Dir(r.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}

	encoded := make(map[string]map[string][]string, len(r.data))
	for network, entries := range r.data {
		encoded[string(network)] = entries
	}
	data, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write registry tmp: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("rename registry: %w", err)
	}
	return nil
}
