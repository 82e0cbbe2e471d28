package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextString(t *testing.T) {
	t.Run("nil context", func(t *testing.T) {
		var c *ChatContext
		assert.Empty(t, c.ContextString())
	})

	t.Run("empty history", func(t *testing.T) {
		c := &ChatContext{UserID: "u1"}
		assert.Empty(t, c.ContextString())
	})

	t.Run("numbered turns oldest first", func(t *testing.T) {
		c := &ChatContext{
			UserID: "u1",
			Interactions: []ChatInteraction{
				{Query: "busco un nissan", Response: "Te recomiendo el Versa"},
				{Query: "y el precio?", Response: "Cuesta $285,000 MXN"},
			},
		}

		got := c.ContextString()
		assert.True(t, strings.HasPrefix(got, ChatContextHeader))
		assert.Contains(t, got, "1. Usuario: busco un nissan")
		assert.Contains(t, got, "   Asistente: Te recomiendo el Versa")
		assert.Contains(t, got, "2. Usuario: y el precio?")
		assert.Less(t, strings.Index(got, "busco un nissan"), strings.Index(got, "y el precio?"))
	})
}

func TestQueryWithContext(t *testing.T) {
	t.Run("no history returns query unchanged", func(t *testing.T) {
		c := &ChatContext{UserID: "u1"}
		assert.Equal(t, "hola", c.QueryWithContext("hola"))
	})

	t.Run("history prepended with headers", func(t *testing.T) {
		c := &ChatContext{
			UserID: "u1",
			Interactions: []ChatInteraction{
				{Query: "busco un nissan", Response: "Te recomiendo el Versa"},
			},
		}

		got := c.QueryWithContext("quiero financiar ese auto")
		assert.Contains(t, got, ChatContextHeader)
		assert.Contains(t, got, CurrentQueryHeader+"\nquiero financiar ese auto")
		assert.Less(t, strings.Index(got, ChatContextHeader), strings.Index(got, CurrentQueryHeader))
	})
}

func TestCarPreferences_HasOnlyBrand(t *testing.T) {
	brand := "Toyota"
	budget := 300000

	assert.False(t, (&CarPreferences{}).HasOnlyBrand())
	assert.True(t, (&CarPreferences{Brand: &brand}).HasOnlyBrand())
	assert.False(t, (&CarPreferences{Brand: &brand, BudgetMax: &budget}).HasOnlyBrand())

	// Soft constraints do not disqualify the brand-only fallback
	tr := "automatic"
	assert.True(t, (&CarPreferences{Brand: &brand, Transmission: &tr}).HasOnlyBrand())
}

func TestCarPreferences_IsEmpty(t *testing.T) {
	var nilPrefs *CarPreferences
	assert.True(t, nilPrefs.IsEmpty())
	assert.True(t, (&CarPreferences{}).IsEmpty())

	city := "CDMX"
	assert.False(t, (&CarPreferences{City: &city}).IsEmpty())
}

func TestIntentValid(t *testing.T) {
	assert.True(t, IntentRecommend.Valid())
	assert.True(t, IntentValueProp.Valid())
	assert.False(t, Intent("purchase").Valid())
	assert.False(t, Intent("").Valid())
}
