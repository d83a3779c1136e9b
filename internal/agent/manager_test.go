package agent

import "testing"

func TestManagerEmitToUnknownEndpointFails(t *testing.T) {
    t.Parallel()
    m := NewManager(nil)
    if err := m.EmitToEndpoint("nowhere:1234", "stackList", nil); err == nil {
        t.Error("expected error for unconnected endpoint")
    }
}

func TestManagerRemoveUnknownEndpointIsNotAnError(t *testing.T) {
    t.Parallel()
    m := NewManager(nil)
    if err := m.Remove("https://peer:5001"); err != nil {
        t.Errorf("Remove on unknown endpoint should be a no-op, got %v", err)
    }
}

func TestManagerConnectedFalseForUnknownEndpoint(t *testing.T) {
    t.Parallel()
    m := NewManager(nil)
    if m.Connected("peer:5001") {
        t.Error("Connected should be false for an endpoint never connected")
    }
}

func TestManagerEmitToAllEndpointsNoPanicWhenEmpty(t *testing.T) {
    t.Parallel()
    m := NewManager(nil)
    m.EmitToAllEndpoints("stackList", nil) // must not panic
}
