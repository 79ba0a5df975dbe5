package pay

import "testing"

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	secret := "sk_test_secret"
	if !VerifySignature(body, SignBody(body, secret), secret) {
		t.Fatal("expected signature to be valid")
	}
	if VerifySignature(body, SignBody(body, "other"), secret) {
		t.Fatal("signature under a different key must not verify")
	}
	if VerifySignature(body, "deadbeef", secret) {
		t.Fatal("unexpected valid signature")
	}
	if VerifySignature(body, "not-hex", secret) {
		t.Fatal("non-hex signature must not verify")
	}
	if VerifySignature(body, "", secret) {
		t.Fatal("empty signature must not verify")
	}
	if VerifySignature(body, SignBody(body, ""), "") {
		t.Fatal("empty secret must not verify")
	}
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"event":"charge.success","data":{"reference":"ref-1","amount":1390000,"channel":"card"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Event != EventChargeSuccess || ev.Data.Reference != "ref-1" || ev.Data.Amount != 1390000 {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, err := ParseWebhook([]byte(`{`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
	if _, err := ParseWebhook([]byte(`{"event":"charge.success","data":{}}`)); err == nil {
		t.Fatal("expected error for missing reference")
	}
}
