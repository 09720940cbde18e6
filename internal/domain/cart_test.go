package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemKey_VariantDistinguishesLines(t *testing.T) {
	base := CartItem{ProductID: "p1"}
	red := CartItem{ProductID: "p1", VariantID: "red"}
	blue := CartItem{ProductID: "p1", VariantID: "blue"}

	assert.NotEqual(t, base.Key(), red.Key())
	assert.NotEqual(t, red.Key(), blue.Key())
	assert.Equal(t, base.Key(), CartItem{ProductID: "p1"}.Key())
}

func TestCart_FindItem(t *testing.T) {
	c := NewCart("tok")
	c.Items = []CartItem{
		item("p1", 1, "1.00"),
		{ProductID: "p2", VariantID: "v1", Quantity: 2},
	}

	assert.Equal(t, 0, c.FindItem(ItemKey{ProductID: "p1"}))
	assert.Equal(t, 1, c.FindItem(ItemKey{ProductID: "p2", VariantID: "v1"}))
	assert.Equal(t, -1, c.FindItem(ItemKey{ProductID: "p2"}))
	assert.Equal(t, -1, c.FindItem(ItemKey{ProductID: "missing"}))
}

func TestCart_CloneIsIndependent(t *testing.T) {
	c := NewCart("tok")
	c.Items = append(c.Items, item("p1", 1, "1.00"))

	cp := c.Clone()
	require.Len(t, cp.Items, 1)

	cp.Items[0].Quantity = 99
	cp.Items = append(cp.Items, item("p2", 1, "2.00"))

	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Len(t, c.Items, 1)
}

func TestNewCart_Defaults(t *testing.T) {
	c := NewCart("tok")

	assert.Equal(t, "tok", c.SessionToken)
	assert.Empty(t, c.ID)
	assert.Equal(t, StatusActive, c.Status)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.ItemCount())
}
