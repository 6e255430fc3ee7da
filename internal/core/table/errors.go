package table

import "errors"

// ErrWriteFailed は再試行上限を超えても書き込めなかった場合に返却されます。
var ErrWriteFailed = errors.New("table: write failed")
