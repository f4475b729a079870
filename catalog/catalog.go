// Package catalog provides a read-only, file-backed lookup from process
// id to its ProcessGraph, loaded from a directory of JSON files (one
// file per process) and cached in memory.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ticketgraph/engine/engine"
	"github.com/ticketgraph/engine/platform"
)

// ProcessCatalog loads ProcessGraph definitions from a directory and
// caches the parsed, validated graphs in a read-lock-guarded map keyed
// by process id. It implements engine.ProcessCatalog.
type ProcessCatalog struct {
	dir    string
	mu     sync.RWMutex
	graphs map[string]*engine.ProcessGraph
	logger platform.Logger
}

// New builds a ProcessCatalog rooted at dir. Call Refresh to perform
// the initial load; a catalog with no graphs loaded fails every lookup
// with an error wrapping engine.ErrFailedToReadProcessData.
func New(dir string, logger platform.Logger) *ProcessCatalog {
	if logger == nil {
		logger = platform.NoOpLogger{}
	}
	if cal, ok := logger.(platform.ComponentAwareLogger); ok {
		logger = cal.WithComponent("catalog")
	}
	return &ProcessCatalog{
		dir:    dir,
		graphs: make(map[string]*engine.ProcessGraph),
		logger: logger,
	}
}

// processFile is the on-disk JSON shape for one process definition.
type processFile struct {
	ProcessID string        `json:"process_id"`
	Steps     []stepFile    `json:"steps"`
}

type stepFile struct {
	Event     string             `json:"event"`
	Required  []int              `json:"required"`
	Next      []int              `json:"next"`
	Args      []string           `json:"args"`
	Callbacks []callbackFile     `json:"callbacks"`
}

type callbackFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

var eventFromName = map[string]engine.Event{
	"Initiate":        engine.Initiate,
	"Approve":         engine.Approve,
	"Notify":          engine.Notify,
	"NonBlockingTask": engine.NonBlockingTask,
	"BlockingTask":    engine.BlockingTask,
	"Complete":        engine.Complete,
}

// Refresh reloads every *.json file in dir, validates each graph, and
// atomically swaps the in-memory cache on success. A malformed file
// aborts the refresh entirely — the previous, already-validated cache
// is left untouched so a single bad file can never leave the catalog in
// a partially-updated state.
func (c *ProcessCatalog) Refresh() error {
	start := time.Now()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("catalog: read dir %q: %w", c.dir, err)
	}

	next := make(map[string]*engine.ProcessGraph, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		graph, err := loadGraphFile(path)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		if err := graph.Validate(); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		next[graph.ProcessID] = graph
	}

	c.mu.Lock()
	c.graphs = next
	c.mu.Unlock()

	c.logger.Info("catalog refresh complete", map[string]interface{}{
		"operation":     "catalog_refresh",
		"process_count": len(next),
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	return nil
}

func loadGraphFile(path string) (*engine.ProcessGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	var pf processFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	steps := make([]engine.Step, len(pf.Steps))
	for i, sf := range pf.Steps {
		ev, ok := eventFromName[sf.Event]
		if !ok {
			return nil, fmt.Errorf("%q: step %d has unknown event %q", path, i, sf.Event)
		}
		callbacks := make([]engine.Callback, len(sf.Callbacks))
		for j, cb := range sf.Callbacks {
			callbacks[j] = engine.Callback{Name: cb.Name, URL: cb.URL}
		}
		steps[i] = engine.Step{
			Event:     ev,
			Required:  sf.Required,
			Next:      sf.Next,
			Args:      sf.Args,
			Callbacks: callbacks,
		}
	}
	return &engine.ProcessGraph{ProcessID: pf.ProcessID, Steps: steps}, nil
}

// Get implements engine.ProcessCatalog.
func (c *ProcessCatalog) Get(processID string) (*engine.ProcessGraph, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.graphs[processID]
	if !ok {
		return nil, fmt.Errorf("catalog: process %q: %w", processID, engine.ErrFailedToReadProcessData)
	}
	return g, nil
}

var _ engine.ProcessCatalog = (*ProcessCatalog)(nil)
