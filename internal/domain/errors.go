package domain

import "errors"

var (
	// ErrKeygen は乱数シードが無い、または secp256k1 のスカラーとして不正な場合のエラー。
	ErrKeygen = errors.New("private key generation failed")

	// ErrAlreadyInitialized はキーストアが既に初期化済みの場合のエラー。
	ErrAlreadyInitialized = errors.New("keystore already initialized")

	// ErrKeyNotFound は秘密鍵が存在しない、または復元できない場合のエラー。
	ErrKeyNotFound = errors.New("private key not found")

	// ErrPolicyNotFound は有効期限ポリシーが存在しない、または復元できない場合のエラー。
	ErrPolicyNotFound = errors.New("expiry policy not found")

	// ErrSlotAlreadyExists はストアに指定スロットが既に存在する場合のエラー。
	ErrSlotAlreadyExists = errors.New("slot already exists")

	// ErrProvision はトークン生成時のシリアライズ失敗。
	ErrProvision = errors.New("failed to provision token")

	// ErrSigning は署名処理の内部エラー。
	ErrSigning = errors.New("signing failed")

	// ErrVerification は検証処理の内部エラー（トークンが不正であることとは区別する）。
	ErrVerification = errors.New("verification failed")

	// ErrMalformedToken はトークンのセグメント構造が不正な場合のエラー。
	ErrMalformedToken = errors.New("malformed token")

	// ErrMalformedEncoding は base64url として不正なセグメントのエラー。
	ErrMalformedEncoding = errors.New("malformed encoding")

	// ErrMalformedPayload はペイロードのスキーマ不一致またはデコード失敗。
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
