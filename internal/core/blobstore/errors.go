package blobstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound はパスにファイルが存在しない場合に返却されます。
	ErrNotFound = errors.New("blobstore: not found")
	// ErrConflict は楽観ロックのバージョンが一致しない場合に返却されます。
	ErrConflict = errors.New("blobstore: version conflict")
	// ErrAlreadyExists はバージョン無しの作成要求に対し既にファイルが存在する場合に返却されます。
	ErrAlreadyExists = errors.New("blobstore: already exists")
	// ErrTransport は通信・認証・応答不正などの失敗を表します。
	ErrTransport = errors.New("blobstore: transport failure")
)

// ConflictError は書き込み競合の詳細です。
// Expected が空の場合は作成競合 (ErrAlreadyExists) を表します。
type ConflictError struct {
	Path     string
	Expected string
}

func (e *ConflictError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("blobstore: %s already exists", e.Path)
	}
	return fmt.Sprintf("blobstore: version conflict on %s (expected %s)", e.Path, e.Expected)
}

// Is は ErrConflict と、作成競合の場合は ErrAlreadyExists にも一致します。
func (e *ConflictError) Is(target error) bool {
	if target == ErrConflict {
		return true
	}
	return target == ErrAlreadyExists && e.Expected == ""
}

// TransportError は通信層の失敗の詳細です。StatusCode は HTTP 以外のバックエンドでは 0 です。
type TransportError struct {
	Op         string
	Path       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("blobstore: %s %s: status %d: %v", e.Op, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("blobstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is は ErrTransport に一致します。
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsRetryable は Reconciler が再試行してよい失敗かどうかを返します。
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTransport)
}
