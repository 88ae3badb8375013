package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 一意制約違反（transaction_refの衝突など）
	ErrConflict = errors.New("conflict")
)
