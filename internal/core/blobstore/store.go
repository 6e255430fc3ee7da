package blobstore

import "context"

// Blob はリモートに保存されたファイル内容とそのバージョンです。
type Blob struct {
	Path    string
	Content []byte
	Version string
}

// PutRequest は書き込み要求です。
// Version が空の場合は「存在しなければ作成」を意味します。
type PutRequest struct {
	Path    string
	Content []byte
	Version string
	Message string
}

// Store はバージョン付きファイルストアの抽象です。
// Put を呼び出してよいのは table パッケージの Reconciler のみです。
type Store interface {
	Fetch(ctx context.Context, path string) (*Blob, error)
	Put(ctx context.Context, req PutRequest) (string, error)
}
