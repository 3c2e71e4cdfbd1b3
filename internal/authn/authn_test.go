package authn

import "testing"

func TestHashVerifyRoundTrip(t *testing.T) {
	hash, err := Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !Verify(hash, "correct horse battery staple") {
		t.Fatal("expected verify to succeed with correct password")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	hash, err := Hash("right-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if Verify(hash, "wrong-password") {
		t.Fatal("expected verify to fail with wrong password")
	}
}

func TestHashIsSaltedPerCall(t *testing.T) {
	a, err := Hash("same-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := Hash("same-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatal("expected two hashes of the same password to differ (random salt)")
	}
	if !Verify(a, "same-password") || !Verify(b, "same-password") {
		t.Fatal("both hashes should still verify the same password")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	if Verify("not-a-valid-hash", "anything") {
		t.Fatal("expected malformed hash to fail verification")
	}
}
