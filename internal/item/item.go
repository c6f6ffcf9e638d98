// Package item provides the in-memory item catalog and its HTTP CRUD
// endpoints.
package item

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
)

// Item is one catalog entry.
type Item struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int    `json:"price"`
}

// Catalog is a concurrency-safe in-memory item list.
type Catalog struct {
	mu     sync.RWMutex
	items  []Item
	nextID int
}

// NewCatalog creates a catalog seeded with the given items.
func NewCatalog(seed ...Item) *Catalog {
	c := &Catalog{items: append([]Item(nil), seed...), nextID: 1}
	for _, it := range seed {
		if it.ID >= c.nextID {
			c.nextID = it.ID + 1
		}
	}
	return c
}

// Items returns a snapshot of the catalog.
func (c *Catalog) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Item(nil), c.items...)
}

// Get returns the item with the given id.
func (c *Catalog) Get(id int) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, it := range c.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Add appends an item, assigning the next id when none is given, and
// returns the stored item.
func (c *Catalog) Add(it Item) Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it.ID == 0 {
		it.ID = c.nextID
	}
	if it.ID >= c.nextID {
		c.nextID = it.ID + 1
	}
	c.items = append(c.items, it)
	return it
}

// Register mounts the catalog's CRUD routes on the router.
func (c *Catalog) Register(r *mux.Router) {
	r.HandleFunc("/items", c.handleList).Methods(http.MethodGet)
	r.HandleFunc("/items", c.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/items/{id}", c.handleGet).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing item response: %v", err)
	}
}

func (c *Catalog) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.Items())
}

func (c *Catalog) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	it, ok := c.Get(id)
	if !ok {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (c *Catalog) handleCreate(w http.ResponseWriter, r *http.Request) {
	var it Item
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
		http.Error(w, "invalid item payload", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, c.Add(it))
}
