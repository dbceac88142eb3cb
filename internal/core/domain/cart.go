package domain

import "time"

type CartEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// Cart is one user's cart. Entries keep insertion order, which is also display order.
type Cart struct {
	UserID    string      `json:"user_id"`
	Entries   []CartEntry `json:"entries"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func NewCart(userID string) Cart {
	return Cart{UserID: userID}
}

func (c *Cart) indexOf(productID string) int {
	for i, e := range c.Entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add merges quantity into the existing entry for productID or appends a new one.
func (c *Cart) Add(productID string, quantity int, now time.Time, newID func() string) CartEntry {
	if i := c.indexOf(productID); i >= 0 {
		c.Entries[i].Quantity += quantity
		c.UpdatedAt = now
		return c.Entries[i]
	}
	entry := CartEntry{
		ID:        newID(),
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   now,
	}
	c.Entries = append(c.Entries, entry)
	c.UpdatedAt = now
	return entry
}

// SetQuantity overwrites the entry quantity in place; non-positive quantities remove it.
// It reports whether an entry for productID existed.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
		return true
	}
	c.Entries[i].Quantity = quantity
	return true
}

func (c *Cart) Remove(productID string) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
	return true
}

func (c *Cart) Clear() {
	c.Entries = nil
}

func (c Cart) EntryByID(entryID string) (CartEntry, bool) {
	for _, e := range c.Entries {
		if e.ID == entryID {
			return e, true
		}
	}
	return CartEntry{}, false
}

func (c Cart) ItemCount() int {
	n := 0
	for _, e := range c.Entries {
		n += e.Quantity
	}
	return n
}

// Snapshot returns a copy that does not share entry storage with c.
func (c Cart) Snapshot() []CartEntry {
	return append([]CartEntry(nil), c.Entries...)
}
