package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(campaignID string) *Client {
	return &Client{
		Send:       make(chan []byte, 4),
		CampaignID: campaignID,
	}
}

func recvAlert(t *testing.T, c *Client) DonationAlert {
	t.Helper()
	select {
	case msg := <-c.Send:
		var alert DonationAlert
		if err := json.Unmarshal(msg, &alert); err != nil {
			t.Fatalf("unmarshal alert: %v", err)
		}
		return alert
	case <-time.After(time.Second):
		t.Fatal("no alert received")
		return DonationAlert{}
	}
}

func TestHubBroadcastsToCampaignWatchers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	watcherA := newTestClient("camp-1")
	watcherB := newTestClient("camp-1")
	other := newTestClient("camp-2")
	hub.Register <- watcherA
	hub.Register <- watcherB
	hub.Register <- other

	hub.BroadcastAlert <- DonationAlert{
		CampaignID: "camp-1",
		MemoCode:   "DON7F3K9Q2",
		Amount:     50000,
		Gateway:    "MBBank",
	}

	for _, w := range []*Client{watcherA, watcherB} {
		alert := recvAlert(t, w)
		if alert.MemoCode != "DON7F3K9Q2" || alert.Amount != 50000 {
			t.Fatalf("unexpected alert %+v", alert)
		}
	}

	select {
	case msg := <-other.Send:
		t.Fatalf("campaign camp-2 watcher received foreign alert: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastWithoutWatchersDoesNotBlock(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	done := make(chan struct{})
	go func() {
		hub.BroadcastAlert <- DonationAlert{CampaignID: "nobody-watching"}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked with no watchers registered")
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient("camp-1")
	hub.Register <- client
	hub.Unregister <- client

	select {
	case _, open := <-client.Send:
		if open {
			t.Fatal("expected Send to be closed after unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("Send not closed after unregister")
	}
}
