// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package protocoltest builds synthetic events for tests.
package protocoltest

import (
	"fmt"

	"github.com/danjacques/gorawevent/protocol"
)

// MakeEvent builds a deterministic physics event with n fragments.
//
// The first fragment is a trigger fragment; the rest are tracker fragments.
// Payload contents are derived from counter, so events with different counters
// are distinguishable.
func MakeEvent(counter uint64, n int) *protocol.Event {
	e := protocol.NewEvent(protocol.PhysicsTag, 1337, counter, 1000000+counter)
	for i := 0; i < n; i++ {
		id := protocol.TrackerSource | protocol.SourceID(i)
		if i == 0 {
			id = protocol.TriggerSource
		}

		payload := make([]byte, 8+4*i)
		for j := range payload {
			payload[j] = byte(counter) + byte(j)
		}

		f := protocol.NewFragment(id, 0x1000+counter, uint16(counter), payload)
		f.TriggerBits = 1 << uint(i%16)
		if _, err := e.AddFragment(f); err != nil {
			panic(fmt.Sprintf("adding fragment %s: %s", id, err))
		}
	}
	return e
}

// MustBytes returns e's serialized form, panicking on error.
func MustBytes(e *protocol.Event) []byte {
	data, err := e.Bytes()
	if err != nil {
		panic(err)
	}
	return data
}
