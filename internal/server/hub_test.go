package server

import (
	"sync"
	"testing"
	"time"
)

// A page that reloads reconnects with the same clientId while the old
// connection's pumps are still running. The daemon must replace the old
// client without disturbing the new one.
func TestReconnectSameClientID(t *testing.T) {
	env := newTestEnv(t)

	first := env.dial(t, "page")
	readUntil(t, first, MsgWelcome)

	second := env.dial(t, "page")
	readUntil(t, second, MsgWelcome)

	if n := env.srv.Hub().ClientCount(); n != 1 {
		t.Errorf("clients after reconnect = %d, want 1", n)
	}

	// The replaced connection gets closed by the daemon.
	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg Message
		if err := first.ReadJSON(&msg); err != nil {
			break
		}
	}

	// The new connection keeps working.
	sendMsg(t, second, MsgPing, nil)
	readUntil(t, second, MsgPong)
}

// Reconnecting repeatedly must never panic the hub even when broadcasts
// are in flight.
func TestReconnectDuringBroadcast(t *testing.T) {
	env := newTestEnv(t)
	hub := env.srv.Hub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.Broadcast(newMessage(MsgStatus, nil))
		}
	}()

	for i := 0; i < 10; i++ {
		conn := env.dial(t, "page")
		readUntil(t, conn, MsgWelcome)
	}
	<-done
}

// Queueing into a client's buffer races with teardown. closeSend must be
// idempotent and trySend must tolerate a client that is already gone.
func TestClientSendCloseRace(t *testing.T) {
	c := &client{id: "page", send: make(chan Message, sendBufferSize)}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5000; i++ {
				c.trySend(newMessage(MsgPong, nil))
			}
		}()
	}

	time.Sleep(time.Millisecond)
	c.closeSend()
	c.closeSend()
	wg.Wait()

	for {
		if _, ok := <-c.send; !ok {
			return
		}
	}
}
