package secret

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
    t.Parallel()
    key := DeriveKey("test-jwt-secret")

    for _, p := range []string{"", "hello", "p@ssw0rd!", "unicode: héllo 世界"} {
        ct, err := Encrypt(p, key)
        if err != nil {
            t.Fatalf("Encrypt(%q): %v", p, err)
        }
        if !IsEncrypted(ct) {
            t.Errorf("Encrypt(%q) = %q, missing tag", p, ct)
        }
        pt, err := Decrypt(ct, key)
        if err != nil {
            t.Fatalf("Decrypt(%q): %v", ct, err)
        }
        if pt != p {
            t.Errorf("round trip: got %q, want %q", pt, p)
        }
    }
}

func TestEncryptNoncesDiffer(t *testing.T) {
    t.Parallel()
    key := DeriveKey("secret")

    a, err := Encrypt("same-plaintext", key)
    if err != nil {
        t.Fatal(err)
    }
    b, err := Encrypt("same-plaintext", key)
    if err != nil {
        t.Fatal(err)
    }
    if a == b {
        t.Error("two encryptions of the same plaintext produced identical ciphertext")
    }

    for _, ct := range []string{a, b} {
        pt, err := Decrypt(ct, key)
        if err != nil {
            t.Fatal(err)
        }
        if pt != "same-plaintext" {
            t.Errorf("Decrypt(%q) = %q", ct, pt)
        }
    }
}

func TestDecryptLegacyPlaintext(t *testing.T) {
    t.Parallel()
    key := DeriveKey("secret")

    pt, err := Decrypt("plain-old-password", key)
    if err != nil {
        t.Fatal(err)
    }
    if pt != "plain-old-password" {
        t.Errorf("legacy plaintext should pass through unchanged, got %q", pt)
    }
}

func TestIsEncrypted(t *testing.T) {
    t.Parallel()
    key := DeriveKey("secret")
    ct, _ := Encrypt("x", key)

    if !IsEncrypted(ct) {
        t.Errorf("%q should be detected as encrypted", ct)
    }
    if IsEncrypted("plaintext") {
        t.Error("plaintext should not be detected as encrypted")
    }
}
