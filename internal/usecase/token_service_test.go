package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"token-issuer-service/internal/codec"
	"token-issuer-service/internal/domain"
	"token-issuer-service/internal/signer"
)

// mockTokenMetrics は記録された結果を保持する。
type mockTokenMetrics struct {
	issued    []string
	validated []string
}

func (m *mockTokenMetrics) TokenIssued(result string)     { m.issued = append(m.issued, result) }
func (m *mockTokenMetrics) TokenValidated(outcome string) { m.validated = append(m.validated, outcome) }

var issuedAt = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func setupTokenService(t *testing.T, hours uint8) (*TokenService, *mockTokenMetrics) {
	t.Helper()
	ks, _ := newTestKeystore(t)
	if err := ks.Initialize(context.Background(), testSeed(), domain.HoursToSeconds(hours)); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	m := &mockTokenMetrics{}
	return NewTokenService(ks, m), m
}

func mustIssue(t *testing.T, svc *TokenService, subject string, now time.Time) string {
	t.Helper()
	token, err := svc.Issue(context.Background(), subject, now)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return token
}

func mustValidate(t *testing.T, svc *TokenService, token string, now time.Time) bool {
	t.Helper()
	valid, err := svc.Validate(context.Background(), token, now)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	return valid
}

func TestTokenService_IssueValidate_RoundTrip(t *testing.T) {
	for _, hours := range []uint8{1, 24, 255} {
		svc, _ := setupTokenService(t, hours)
		expiry := time.Duration(domain.HoursToSeconds(hours)) * time.Second

		for _, subject := range []string{"alice", "secret1qyqszqgpqyqszqgpqyqszqgpqyqszqgp", "ユーザー", `quote"and\backslash`} {
			token := mustIssue(t, svc, subject, issuedAt)

			if !mustValidate(t, svc, token, issuedAt) {
				t.Errorf("hours=%d subject=%q: want valid at issuance", hours, subject)
			}
			if !mustValidate(t, svc, token, issuedAt.Add(expiry-time.Nanosecond)) {
				t.Errorf("hours=%d subject=%q: want valid just before expiry", hours, subject)
			}
			if mustValidate(t, svc, token, issuedAt.Add(expiry)) {
				t.Errorf("hours=%d subject=%q: want invalid at expiry", hours, subject)
			}
			if mustValidate(t, svc, token, issuedAt.Add(expiry+time.Second)) {
				t.Errorf("hours=%d subject=%q: want invalid after expiry", hours, subject)
			}
		}
	}
}

func TestTokenService_EndToEndExample(t *testing.T) {
	svc, _ := setupTokenService(t, 24)
	token := mustIssue(t, svc, "alice", issuedAt)

	if !mustValidate(t, svc, token, issuedAt.Add(23*time.Hour+59*time.Minute)) {
		t.Error("want valid at T+23h59m")
	}
	if mustValidate(t, svc, token, issuedAt.Add(24*time.Hour+time.Minute)) {
		t.Error("want invalid at T+24h01m")
	}
}

func TestTokenService_Issue_Format(t *testing.T) {
	svc, _ := setupTokenService(t, 24)
	token := mustIssue(t, svc, "alice", issuedAt)

	if strings.Contains(token, "=") {
		t.Errorf("token must not contain padding: %s", token)
	}
	h, p, s, err := codec.SplitToken(token)
	if err != nil {
		t.Fatalf("SplitToken failed: %v", err)
	}

	header, err := codec.DecodeSegment(h)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if string(header) != `{"typ":"JWT","alg":"HS256"}` {
		t.Errorf("unexpected header %s", header)
	}

	payloadBytes, err := codec.DecodeSegment(p)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	payload, err := codec.DeserializePayload(payloadBytes)
	if err != nil {
		t.Fatalf("deserialize payload: %v", err)
	}
	if payload.Subject != "alice" {
		t.Errorf("want subject alice, got %s", payload.Subject)
	}
	if want := domain.TimestampFromTime(issuedAt.Add(24 * time.Hour)); payload.ExpiresAt != want {
		t.Errorf("want exp %d, got %d", want, payload.ExpiresAt)
	}

	sig, err := codec.DecodeSegment(s)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) != signer.SignatureSize {
		t.Errorf("want %d-byte signature, got %d", signer.SignatureSize, len(sig))
	}
}

func TestTokenService_Issue_Deterministic(t *testing.T) {
	svc, _ := setupTokenService(t, 24)

	first := mustIssue(t, svc, "alice", issuedAt)
	second := mustIssue(t, svc, "alice", issuedAt)
	if first != second {
		t.Errorf("want identical tokens for identical input, got %s and %s", first, second)
	}
}

func TestTokenService_Issue_ProvisionError(t *testing.T) {
	svc, m := setupTokenService(t, 24)

	for _, subject := range []string{"", "\xff\xfe"} {
		if _, err := svc.Issue(context.Background(), subject, issuedAt); !errors.Is(err, domain.ErrProvision) {
			t.Errorf("subject %q: want ErrProvision, got %v", subject, err)
		}
	}
	if len(m.issued) != 2 || m.issued[0] != "error" {
		t.Errorf("want 2 error results recorded, got %v", m.issued)
	}
}

func TestTokenService_Uninitialized(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeystore(t)
	svc := NewTokenService(ks, nil)

	if _, err := svc.Issue(ctx, "alice", issuedAt); !errors.Is(err, domain.ErrPolicyNotFound) {
		t.Errorf("Issue: want ErrPolicyNotFound, got %v", err)
	}
	if _, err := svc.PublicKey(ctx); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("PublicKey: want ErrKeyNotFound, got %v", err)
	}

	// 別のキーストアで発行した有効期限内のトークンは鍵が無いため判定できない
	other, _ := setupTokenService(t, 24)
	token := mustIssue(t, other, "alice", issuedAt)
	valid, err := svc.Validate(ctx, token, issuedAt)
	if !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("Validate: want ErrKeyNotFound, got %v", err)
	}
	if valid {
		t.Error("Validate: want valid=false alongside error")
	}
}

func TestTokenService_Validate_PayloadTamper(t *testing.T) {
	svc, _ := setupTokenService(t, 24)
	token := mustIssue(t, svc, "alice", issuedAt)
	h, p, s, err := codec.SplitToken(token)
	if err != nil {
		t.Fatalf("SplitToken failed: %v", err)
	}
	payload, err := codec.DecodeSegment(p)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	for i := range payload {
		tampered := append([]byte(nil), payload...)
		tampered[i] ^= 0x01
		forged := codec.JoinToken(h, codec.EncodeSegment(tampered), s)
		if mustValidate(t, svc, forged, issuedAt) {
			t.Errorf("byte %d flipped: want invalid, got valid", i)
		}
	}
}

func TestTokenService_Validate_ForgedExpiry(t *testing.T) {
	svc, m := setupTokenService(t, 1)
	token := mustIssue(t, svc, "alice", issuedAt)
	h, _, s, err := codec.SplitToken(token)
	if err != nil {
		t.Fatalf("SplitToken failed: %v", err)
	}

	// 有効期限を延ばしたペイロードに元の署名を付け替える
	forgedPayload, err := codec.SerializePayload(domain.Payload{
		Subject:   "alice",
		ExpiresAt: domain.TimestampFromTime(issuedAt.Add(1000 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("SerializePayload failed: %v", err)
	}
	forged := codec.JoinToken(h, codec.EncodeSegment(forgedPayload), s)

	if mustValidate(t, svc, forged, issuedAt.Add(2*time.Hour)) {
		t.Error("want forged token invalid, got valid")
	}
	if got := m.validated[len(m.validated)-1]; got != OutcomeBadSignature {
		t.Errorf("want outcome %s, got %s", OutcomeBadSignature, got)
	}
}

func TestTokenService_Validate_SignatureFromOtherKey(t *testing.T) {
	svc, _ := setupTokenService(t, 24)

	otherKS, _ := newTestKeystore(t)
	if err := otherKS.Initialize(context.Background(), bytes.Repeat([]byte{0x22}, 32), 86400); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	other := NewTokenService(otherKS, nil)

	token := mustIssue(t, other, "alice", issuedAt)
	if mustValidate(t, svc, token, issuedAt) {
		t.Error("want token signed by other key invalid, got valid")
	}
}

func TestTokenService_Validate_MalformedNeverErrors(t *testing.T) {
	svc, m := setupTokenService(t, 24)
	token := mustIssue(t, svc, "alice", issuedAt)
	h, p, s, err := codec.SplitToken(token)
	if err != nil {
		t.Fatalf("SplitToken failed: %v", err)
	}
	sig, err := codec.DecodeSegment(s)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	garbage := codec.EncodeSegment([]byte("not json"))
	wrongSchema := codec.EncodeSegment([]byte(`{"address":"alice","exp":123}`))

	tests := []struct {
		name    string
		token   string
		outcome string
	}{
		{"empty", "", OutcomeMalformedToken},
		{"one segment", h, OutcomeMalformedToken},
		{"two segments", h + "." + p, OutcomeMalformedToken},
		{"four segments", token + "." + s, OutcomeMalformedToken},
		{"empty segment", h + ".." + s, OutcomeMalformedToken},
		{"payload not base64", codec.JoinToken(h, "!!!", s), OutcomeMalformedPayload},
		{"payload not json", codec.JoinToken(h, garbage, s), OutcomeMalformedPayload},
		{"payload wrong schema", codec.JoinToken(h, wrongSchema, s), OutcomeMalformedPayload},
		{"header not base64", codec.JoinToken("***", p, s), OutcomeMalformedHeader},
		{"signature not base64", codec.JoinToken(h, p, "@@@"), OutcomeMalformedSignature},
		{"signature truncated", codec.JoinToken(h, p, codec.EncodeSegment(sig[:63])), OutcomeMalformedSignature},
		{"signature zero", codec.JoinToken(h, p, codec.EncodeSegment(make([]byte, 64))), OutcomeMalformedSignature},
		{"padded signature", codec.JoinToken(h, p, s+"="), OutcomeMalformedSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := svc.Validate(context.Background(), tt.token, issuedAt)
			if err != nil {
				t.Fatalf("want no error, got %v", err)
			}
			if valid {
				t.Error("want invalid, got valid")
			}
			if got := m.validated[len(m.validated)-1]; got != tt.outcome {
				t.Errorf("want outcome %s, got %s", tt.outcome, got)
			}
		})
	}
}

func TestTokenService_Validate_ExpiryCheckedBeforeSignature(t *testing.T) {
	svc, m := setupTokenService(t, 24)
	token := mustIssue(t, svc, "alice", issuedAt)
	h, p, _, err := codec.SplitToken(token)
	if err != nil {
		t.Fatalf("SplitToken failed: %v", err)
	}

	// 署名が壊れていても失効済みなら expired として扱う
	broken := codec.JoinToken(h, p, "@@@")
	if mustValidate(t, svc, broken, issuedAt.Add(48*time.Hour)) {
		t.Error("want invalid, got valid")
	}
	if got := m.validated[len(m.validated)-1]; got != OutcomeExpired {
		t.Errorf("want outcome %s, got %s", OutcomeExpired, got)
	}
}

// ヘッダーの長さが3の倍数でなくても、各セグメントを個別にデコードして検証できること
func TestTokenService_Validate_HeaderLengthNotMultipleOfThree(t *testing.T) {
	svc, _ := setupTokenService(t, 24)
	key, err := signer.ParsePrivateKey(testSeed())
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}

	header := []byte(`{"typ":"JWT","alg":"HS256" }`)
	if len(header)%3 == 0 {
		t.Fatalf("test header length must not be a multiple of 3, got %d", len(header))
	}
	payload, err := codec.SerializePayload(domain.Payload{
		Subject:   "alice",
		ExpiresAt: domain.TimestampFromTime(issuedAt.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("SerializePayload failed: %v", err)
	}
	sig, err := signer.Sign(key, append(append([]byte(nil), header...), payload...))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	token := codec.JoinToken(codec.EncodeSegment(header), codec.EncodeSegment(payload), codec.EncodeSegment(sig))

	if !mustValidate(t, svc, token, issuedAt) {
		t.Error("want valid, got invalid")
	}
}

func TestTokenService_PublicKey(t *testing.T) {
	svc, _ := setupTokenService(t, 24)

	first, err := svc.PublicKey(context.Background())
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	second, err := svc.PublicKey(context.Background())
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	if first != second {
		t.Errorf("want identical public keys, got %s and %s", first, second)
	}

	raw, err := codec.DecodeSegment(first)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	key, err := signer.ParsePrivateKey(testSeed())
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	if !bytes.Equal(raw, key.PublicKey()) {
		t.Errorf("want %x, got %x", key.PublicKey(), raw)
	}
}

// 発行したトークンの署名を公開鍵だけで外部から検証できること
func TestTokenService_SignatureVerifiableWithPublicKey(t *testing.T) {
	svc, _ := setupTokenService(t, 24)
	token := mustIssue(t, svc, "alice", issuedAt)
	pubB64, err := svc.PublicKey(context.Background())
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}

	h, p, s, _ := codec.SplitToken(token)
	header, _ := codec.DecodeSegment(h)
	payload, _ := codec.DecodeSegment(p)
	sig, _ := codec.DecodeSegment(s)
	pub, _ := codec.DecodeSegment(pubB64)

	ok, err := signer.Verify(pub, signer.Hash(append(header, payload...)), sig)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("want signature verifiable with published key")
	}
}
