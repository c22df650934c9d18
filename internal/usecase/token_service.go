package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"token-issuer-service/internal/codec"
	"token-issuer-service/internal/domain"
	"token-issuer-service/internal/signer"
)

var tracer = otel.Tracer("token-issuer-service/usecase")

// 検証結果の分類。メトリクスとデバッグログにのみ使い、呼び出し元には valid/invalid だけを返す。
const (
	OutcomeValid              = "valid"
	OutcomeMalformedToken     = "malformed_token"
	OutcomeMalformedHeader    = "malformed_header"
	OutcomeMalformedPayload   = "malformed_payload"
	OutcomeExpired            = "expired"
	OutcomeMalformedSignature = "malformed_signature"
	OutcomeBadSignature       = "bad_signature"
)

// Keystore はトークン処理に必要な鍵素材の読み出しインターフェース。
type Keystore interface {
	LoadKeyPair(ctx context.Context) (*signer.PrivateKey, error)
	LoadExpiry(ctx context.Context) (domain.ExpiryPolicy, error)
	PublicKey(ctx context.Context) ([]byte, error)
}

// TokenMetrics はトークン処理の結果を記録するインターフェース。
type TokenMetrics interface {
	TokenIssued(result string)
	TokenValidated(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) TokenIssued(string)    {}
func (noopMetrics) TokenValidated(string) {}

// TokenService はトークンの発行と検証を提供する。
type TokenService struct {
	keystore Keystore
	metrics  TokenMetrics
}

// NewTokenService は新しいTokenServiceを生成する。metrics が nil の場合は記録しない。
func NewTokenService(keystore Keystore, metrics TokenMetrics) *TokenService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TokenService{
		keystore: keystore,
		metrics:  metrics,
	}
}

// Issue は subject に対して now + 有効期間 で失効するトークンを発行する。
func (s *TokenService) Issue(ctx context.Context, subject string, now time.Time) (string, error) {
	ctx, span := tracer.Start(ctx, "TokenService.Issue")
	defer span.End()

	token, err := s.issue(ctx, subject, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue failed")
		s.metrics.TokenIssued("error")
		return "", err
	}
	s.metrics.TokenIssued("success")
	return token, nil
}

func (s *TokenService) issue(ctx context.Context, subject string, now time.Time) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", domain.ErrProvision)
	}

	policy, err := s.keystore.LoadExpiry(ctx)
	if err != nil {
		return "", err
	}
	key, err := s.keystore.LoadKeyPair(ctx)
	if err != nil {
		return "", err
	}

	header, err := codec.SerializeHeader(domain.DefaultHeader())
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProvision, err)
	}
	payload, err := codec.SerializePayload(domain.Payload{
		Subject:   subject,
		ExpiresAt: domain.TimestampFromTime(now).Add(policy.Seconds),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProvision, err)
	}

	// 署名対象は base64 文字列ではなくシリアライズ後の生バイト列
	sig, err := signer.Sign(key, signingMessage(header, payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigning, err)
	}

	return codec.JoinToken(
		codec.EncodeSegment(header),
		codec.EncodeSegment(payload),
		codec.EncodeSegment(sig),
	), nil
}

// Validate はトークンを検証する。トークン自体の不正は false を返し、
// エラーを返すのはサーバー側の鍵素材が存在しないか壊れている場合のみ。
func (s *TokenService) Validate(ctx context.Context, token string, now time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "TokenService.Validate")
	defer span.End()

	outcome, err := s.validate(ctx, token, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validate failed")
		return false, err
	}
	span.SetAttributes(attribute.String("token.outcome", outcome))
	s.metrics.TokenValidated(outcome)
	return outcome == OutcomeValid, nil
}

func (s *TokenService) validate(ctx context.Context, token string, now time.Time) (string, error) {
	headerSeg, payloadSeg, sigSeg, err := codec.SplitToken(token)
	if err != nil {
		return OutcomeMalformedToken, nil
	}

	payloadBytes, err := codec.DecodeSegment(payloadSeg)
	if err != nil {
		return OutcomeMalformedPayload, nil
	}
	payload, err := codec.DeserializePayload(payloadBytes)
	if err != nil {
		return OutcomeMalformedPayload, nil
	}

	// 失効判定が最初の関門。失効時刻ちょうども無効
	if domain.TimestampFromTime(now) >= payload.ExpiresAt {
		return OutcomeExpired, nil
	}

	// 各セグメントを個別にデコードしてから連結する
	headerBytes, err := codec.DecodeSegment(headerSeg)
	if err != nil {
		return OutcomeMalformedHeader, nil
	}
	hash := signer.Hash(signingMessage(headerBytes, payloadBytes))

	sig, err := codec.DecodeSegment(sigSeg)
	if err != nil {
		return OutcomeMalformedSignature, nil
	}

	pub, err := s.keystore.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	ok, err := signer.Verify(pub, hash, sig)
	if err != nil {
		if errors.Is(err, signer.ErrInvalidSignature) {
			return OutcomeMalformedSignature, nil
		}
		return "", fmt.Errorf("%w: %v", domain.ErrVerification, err)
	}
	if !ok {
		return OutcomeBadSignature, nil
	}
	return OutcomeValid, nil
}

// PublicKey は公開鍵を base64url（パディングなし）で返す。
func (s *TokenService) PublicKey(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "TokenService.PublicKey")
	defer span.End()

	pub, err := s.keystore.PublicKey(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "public key unavailable")
		return "", err
	}
	return codec.EncodeSegment(pub), nil
}

func signingMessage(header, payload []byte) []byte {
	msg := make([]byte, 0, len(header)+len(payload))
	msg = append(msg, header...)
	return append(msg, payload...)
}
