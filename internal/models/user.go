package models

import "time"

// User зарегистрированный пользователь сервиса.
type User struct {
	UUID         string    // Уникальный идентификатор пользователя
	Email        string    // Электронная почта, на неё уходят напоминания
	Username     string    // Имя пользователя (уникальное)
	PasswordHash string    // Хэш пароля пользователя
	Role         string    // Роль пользователя, admin или user
	CreatedAt    time.Time // Дата регистрации
}

// PushKeys ключи шифрования Web Push подписки.
type PushKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// PushEndpoint адрес Web Push подписки браузера пользователя.
type PushEndpoint struct {
	Endpoint string   `json:"endpoint" validate:"required,url"`
	Keys     PushKeys `json:"keys"`
}
