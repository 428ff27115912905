package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/domain"
	"strata/internal/service"
)

func TestStreamsBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := service.NewEventBus()
	h := New(zerolog.Nop())
	go h.Run(ctx, bus)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	require.Equal(t, ": connected", <-lines)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(service.Event{
		Type:    domain.EventPublishEntities,
		Payload: &domain.ChangelogEvent{ID: "ev-1", Type: domain.EventPublishEntities},
	})

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case line := <-lines:
			if line != "" {
				got = append(got, line)
			}
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, "event: publishEntities", got[0])
	assert.Equal(t, "id: ev-1", got[1])
	assert.True(t, strings.HasPrefix(got[2], "data: {"), got[2])
	assert.Contains(t, got[2], `"type":"publishEntities"`)
}
