package ratelimit

import "testing"

func TestAllowLoginWithinQuota(t *testing.T) {
    t.Parallel()
    l := New()
    for i := 0; i < 20; i++ {
        if !l.AllowLogin("1.2.3.4") {
            t.Fatalf("attempt %d should be allowed", i)
        }
    }
}

func TestAllowLoginRejectsOverQuota(t *testing.T) {
    t.Parallel()
    l := New()
    for i := 0; i < 20; i++ {
        l.AllowLogin("1.2.3.4")
    }
    if l.AllowLogin("1.2.3.4") {
        t.Error("21st attempt within the same minute should be rejected")
    }
}

func TestLimitersAreIndependentPerKey(t *testing.T) {
    t.Parallel()
    l := New()
    for i := 0; i < 20; i++ {
        l.AllowLogin("1.2.3.4")
    }
    if !l.AllowLogin("5.6.7.8") {
        t.Error("a different key should have its own quota")
    }
}

func TestLimitersAreIndependentPerBucket(t *testing.T) {
    t.Parallel()
    l := New()
    for i := 0; i < 20; i++ {
        l.AllowLogin("1.2.3.4")
    }
    if !l.AllowAPI("1.2.3.4") {
        t.Error("exhausting login quota should not affect the api bucket")
    }
    if !l.AllowTwoFA("1.2.3.4") {
        t.Error("exhausting login quota should not affect the twoFA bucket")
    }
}
