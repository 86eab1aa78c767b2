package memstore

import (
	"testing"

	"inu/internal/adapter/store/storetest"
	"inu/internal/port"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) port.SampleStore {
		return NewMemoryStore()
	})
}
