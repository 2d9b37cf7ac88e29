package model

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

type Session struct {
	UserID int64 `json:"user_id"`
}
