package ws

import (
	"sync"
	"testing"
	"time"
)

// Publish iterates the room map while subscribe/removeConn mutate it and
// close send channels; all three must serialize on the hub lock. Run
// with -race.
func TestPublishDuringSubscriptionChurn(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				h.Publish("L1", "auction_state", map[string]int64{"price": 1})
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			c := &conn{send: make(chan []byte, 1), hub: h}
			h.subscribe(c, "L1")
			h.removeConn(c)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestPublishReachesSubscriber(t *testing.T) {
	h := NewHub()
	c := &conn{send: make(chan []byte, 4), hub: h}
	h.subscribe(c, "L1")

	h.Publish("L1", "bid", map[string]int64{"amount": 75})
	h.Publish("L2", "bid", map[string]int64{"amount": 99})

	select {
	case msg := <-c.send:
		if len(msg) == 0 {
			t.Fatal("empty message delivered")
		}
	default:
		t.Fatal("subscriber did not receive the L1 message")
	}
	select {
	case <-c.send:
		t.Fatal("subscriber received a message for another league")
	default:
	}

	h.removeConn(c)
	if _, open := <-c.send; open {
		t.Fatal("send channel should be closed after removeConn")
	}
}
