package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/remotefix/internal/models"
)

func TestStatusCacheSetGet(t *testing.T) {
	cache := NewStatusCache(time.Minute)
	defer cache.Close()

	_, ok := cache.Get("order_1")
	assert.False(t, ok)

	cache.Set("order_1", PaymentStatus{Status: models.PaymentStatusCreated, Amount: 50000})

	status, ok := cache.Get("order_1")
	assert.True(t, ok)
	assert.Equal(t, models.PaymentStatusCreated, status.Status)
	assert.EqualValues(t, 50000, status.Amount)
}

func TestStatusCacheOverwrite(t *testing.T) {
	cache := NewStatusCache(time.Minute)
	defer cache.Close()

	cache.Set("order_1", PaymentStatus{Status: models.PaymentStatusCreated})
	cache.Set("order_1", PaymentStatus{
		Status:    models.PaymentStatusCaptured,
		PaymentID: "pay_1",
		Method:    "card",
		Amount:    50000,
	})

	status, ok := cache.Get("order_1")
	assert.True(t, ok)
	assert.Equal(t, models.PaymentStatusCaptured, status.Status)
	assert.Equal(t, "pay_1", status.PaymentID)
}

func TestStatusCacheEvictsTerminalEntries(t *testing.T) {
	cache := NewStatusCache(20 * time.Millisecond)
	defer cache.Close()

	cache.Set("order_done", PaymentStatus{Status: models.PaymentStatusCaptured})
	cache.Set("order_pending", PaymentStatus{Status: models.PaymentStatusCreated})

	_, ok := cache.Get("order_done")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = cache.Get("order_done")
	assert.False(t, ok, "terminal entry should expire after the TTL")

	_, ok = cache.Get("order_pending")
	assert.True(t, ok, "non-terminal entries are kept")
}

func TestStatusCacheIgnoresEmptyOrderID(t *testing.T) {
	cache := NewStatusCache(time.Minute)
	defer cache.Close()

	cache.Set("", PaymentStatus{Status: models.PaymentStatusCreated})
	assert.Equal(t, 0, cache.Len())
}
