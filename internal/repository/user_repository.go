package repository

import (
	"context"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
)

// 認証済みユーザーの状態確認だけに使う
type UserRepository interface {
	// IDからユーザーを1件取得する。いなければ(nil, nil)。
	FindByID(ctx context.Context, userID int64) (*model.User, error)
}
