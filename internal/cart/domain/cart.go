package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	CustomerID string     `json:"customer_id"`
	Lines      []CartLine `json:"lines"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CartLine snapshots the product name and price at the time it was added.
type CartLine struct {
	ProductID           int64           `json:"product_id"`
	ProductName         string          `json:"product_name"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	Quantity            int             `json:"quantity"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	AddedAt             time.Time       `json:"added_at"`
}

func NewCart(customerID string, now time.Time) *Cart {
	return &Cart{
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// AddLine merges into an existing line for the same product: the quantity is
// added and the price and name are replaced by the fresh snapshot.
func (c *Cart) AddLine(line CartLine) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			c.Lines[i].UnitPrice = line.UnitPrice
			c.Lines[i].ProductName = line.ProductName
			if line.SpecialInstructions != "" {
				c.Lines[i].SpecialInstructions = line.SpecialInstructions
			}
			return
		}
	}
	c.Lines = append(c.Lines, line)
}

// RemoveLine reports whether a line was removed.
func (c *Cart) RemoveLine(productID int64) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) SetQuantity(productID int64, quantity int) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			return true
		}
	}
	return false
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}
