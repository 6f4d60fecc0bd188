package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrBadItemID   = errors.New("bad item id")
	ErrUnavailable = errors.New("item unavailable")
)

type Item struct {
	Handler string `toml:"handler" json:"handler" validate:"required"`
	ID      int    `toml:"id" json:"id" validate:"min=0"`
	Price   int64  `toml:"price" json:"price" validate:"min=0"`
	Name    string `toml:"name" json:"name" validate:"required"`
}

// Key renders the item as handler:id, the form clients use to name it.
func (i Item) Key() string {
	return i.Handler + ":" + strconv.Itoa(i.ID)
}

// Handler performs the physical side of a dispense. CanDispense must not
// have side effects.
type Handler interface {
	Name() string
	CanDispense(ctx context.Context, accountID, itemID int) error
	DoDispense(ctx context.Context, accountID, itemID int) error
}

// Catalog is the immutable list of items loaded at startup.
type Catalog struct {
	items    []Item
	index    map[string]int
	handlers map[string]Handler
}

func New(items []Item, handlers ...Handler) (*Catalog, error) {
	c := &Catalog{
		items:    make([]Item, 0, len(items)),
		index:    make(map[string]int, len(items)),
		handlers: map[string]Handler{PseudoHandlerName: Pseudo{}},
	}
	for _, h := range handlers {
		c.handlers[h.Name()] = h
	}
	for _, item := range items {
		if strings.ContainsAny(item.Handler, ": ") {
			return nil, fmt.Errorf("item %q: bad handler name", item.Handler)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("item %s: negative price", item.Key())
		}
		if _, dup := c.index[item.Key()]; dup {
			return nil, fmt.Errorf("item %s: duplicate", item.Key())
		}
		c.index[item.Key()] = len(c.items)
		c.items = append(c.items, item)
	}
	return c, nil
}

func (c *Catalog) Items() []Item {
	return append([]Item(nil), c.items...)
}

func (c *Catalog) Len() int {
	return len(c.items)
}

// Lookup finds an item by its handler:id key.
func (c *Catalog) Lookup(key string) (Item, error) {
	handler, id, err := ParseKey(key)
	if err != nil {
		return Item{}, err
	}
	pos, ok := c.index[handler+":"+strconv.Itoa(id)]
	if !ok {
		return Item{}, ErrBadItemID
	}
	return c.items[pos], nil
}

// HandlerFor returns the capability behind an item. Items naming a handler
// that was never registered get one that refuses every dispense.
func (c *Catalog) HandlerFor(item Item) Handler {
	if h, ok := c.handlers[item.Handler]; ok {
		return h
	}
	return Unavailable{name: item.Handler}
}

func (c *Catalog) HandlerNames() []string {
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ParseKey(key string) (string, int, error) {
	handler, rest, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok || handler == "" {
		return "", 0, ErrBadItemID
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id < 0 {
		return "", 0, ErrBadItemID
	}
	return handler, id, nil
}
