package models

import "errors"

var (
	// ErrNotFound запись не найдена или принадлежит другому пользователю.
	ErrNotFound = errors.New("not found")
	// ErrValidation входные данные нарушают инварианты модели.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyExists запись с таким уникальным ключом уже существует.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidCredentials неверная пара логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoEndpoints у пользователя нет ни одного push-адреса.
	ErrNoEndpoints = errors.New("no push endpoints registered")
)
