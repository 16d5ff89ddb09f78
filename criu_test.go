// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package criu

import (
	"testing"
	"time"

	"github.com/checkpoint-restore/go-minicriu/internal/rendezvous"
)

func TestSessionBroadcasterWakesAllWaiters(t *testing.T) {
	var b sessionBroadcaster
	const n = 4
	results := make(chan *rendezvous.Session, n)
	for i := 0; i < n; i++ {
		go func() {
			s, _ := b.await(nil, 0)
			results <- s
		}()
	}

	time.Sleep(20 * time.Millisecond) // let the goroutines reach await
	want := rendezvous.NewSession()
	b.publish(want)

	for i := 0; i < n; i++ {
		select {
		case got := <-results:
			if got != want {
				t.Errorf("waiter %d got %p, want %p", i, got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("not all waiters were woken")
		}
	}
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		th, err := Register()
		if err != nil {
			done <- err
			return
		}
		Unregister(th)
		done <- nil
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Register/Unregister did not complete")
	}
}
