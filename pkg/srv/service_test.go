package srv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	name  string
	order *[]string
	err   error
}

func (r *recorder) Start(ctx context.Context) error { return nil }

func (r *recorder) Shutdown(ctx context.Context) error {
	*r.order = append(*r.order, r.name)
	return r.err
}

func TestShutdownServices_ReverseOrder(t *testing.T) {
	var order []string
	services := []Service{
		&recorder{name: "db", order: &order},
		&recorder{name: "worker", order: &order, err: errors.New("boom")},
		&recorder{name: "transport", order: &order},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ShutdownServices(ctx, services, time.Second)

	assert.Equal(t, []string{"transport", "worker", "db"}, order)
}

func TestNewCleanup(t *testing.T) {
	called := false
	svc := NewCleanup(func() error {
		called = true
		return nil
	})

	assert.NoError(t, svc.Start(context.Background()))
	assert.False(t, called)
	assert.NoError(t, svc.Shutdown(context.Background()))
	assert.True(t, called)
}

func TestNewCleanup_ReverseOrderJoinsErrors(t *testing.T) {
	var order []string
	svc := NewCleanup(
		func() error { order = append(order, "store"); return errors.New("store busy") },
		nil,
		func() error { order = append(order, "cache"); return errors.New("cache closed") },
	)

	err := svc.Shutdown(context.Background())
	assert.Equal(t, []string{"cache", "store"}, order)
	assert.ErrorContains(t, err, "store busy")
	assert.ErrorContains(t, err, "cache closed")
}
