package model

import "time"

// RoleAdmin は管理者ロールの名前。
const RoleAdmin = "admin"

// AuthUser はIDプロバイダーが検証したユーザーを表す。
type AuthUser struct {
	ID    string
	Email string
}

// Principal は認証済みの呼び出し元を表す。
// リクエストコンテキストに格納され、ハンドラーと監査ログで参照される。
type Principal struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// Profile はユーザーの表示用プロフィールを表す。
type Profile struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// UserRole はユーザーとロールの紐付けを表す。
// 管理者判定は (user_id, "admin") の行の有無で行い、キャッシュしない。
type UserRole struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	Profile   *Profile  `json:"profile"`
}
