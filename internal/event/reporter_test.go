package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nh-chitose/r2-re/internal/domain"
)

type captureBus struct {
	channels []string
	payloads [][]byte
	err      error
}

func (b *captureBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReporterPublishesJSON(t *testing.T) {
	bus := &captureBus{}
	r := NewReporter(bus, discardLogger())

	quotes := []domain.Quote{{Broker: "alpha", Side: domain.Ask, Price: 100, Volume: 1}}
	r.QuoteUpdated(context.Background(), quotes)

	require.Equal(t, []string{ChQuoteUpdated}, bus.channels)
	var decoded []domain.Quote
	require.NoError(t, json.Unmarshal(bus.payloads[0], &decoded))
	assert.Equal(t, quotes, decoded)
}

func TestReporterStatus(t *testing.T) {
	bus := &captureBus{}
	r := NewReporter(bus, discardLogger())

	r.Status(context.Background(), "Searching...")

	require.Equal(t, []string{ChStatus}, bus.channels)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(bus.payloads[0], &decoded))
	assert.Equal(t, "Searching...", decoded["status"])
}

func TestReporterNilBusIsNoOp(t *testing.T) {
	r := NewReporter(nil, discardLogger())
	// Must not panic.
	r.QuoteUpdated(context.Background(), nil)
	r.Status(context.Background(), "Waiting...")
}

func TestReporterSwallowsPublishError(t *testing.T) {
	bus := &captureBus{err: errors.New("bus down")}
	r := NewReporter(bus, discardLogger())
	// Delivery is best effort; errors stay internal.
	r.OrderCreated(context.Background(), &domain.Order{ID: "x"})
}
