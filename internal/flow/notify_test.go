package flow

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signet/pkg/oauth"
)

func collect(t *testing.T, ch <-chan Notification, n int) []Notification {
	t.Helper()

	var got []Notification
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case notification, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d notifications", len(got), n)
			}
			got = append(got, notification)
		case <-timeout:
			t.Fatalf("received %d of %d notifications", len(got), n)
		}
	}
	return got
}

func TestHubDeliversInOrder(t *testing.T) {
	h := newHub()
	defer h.close()

	_, ch := h.subscribe()

	for i := 0; i < 5; i++ {
		h.publish(Notification{Profile: &oauth.UserProfile{ID: fmt.Sprintf("user-%d", i)}})
	}

	got := collect(t, ch, 5)
	for i, n := range got {
		require.NotNil(t, n.Profile)
		assert.Equal(t, fmt.Sprintf("user-%d", i), n.Profile.ID)
	}
}

func TestHubFanOut(t *testing.T) {
	h := newHub()
	defer h.close()

	_, ch1 := h.subscribe()
	_, ch2 := h.subscribe()

	h.publish(Notification{Profile: &oauth.UserProfile{ID: "user-1"}})

	for _, ch := range []<-chan Notification{ch1, ch2} {
		got := collect(t, ch, 1)
		require.NotNil(t, got[0].Profile)
		assert.Equal(t, "user-1", got[0].Profile.ID)
	}
}

func TestHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := newHub()
	defer h.close()

	// Subscribe but never read.
	h.subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			h.publish(Notification{})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on an unread subscriber")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := newHub()
	defer h.close()

	id, ch := h.subscribe()
	h.unsubscribe(id)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	h.publish(Notification{})
}

func TestHubCloseClosesAllChannels(t *testing.T) {
	h := newHub()

	_, ch1 := h.subscribe()
	_, ch2 := h.subscribe()

	h.close()

	for _, ch := range []<-chan Notification{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel should be closed")
		case <-time.After(2 * time.Second):
			t.Fatal("channel not closed after hub close")
		}
	}
}
