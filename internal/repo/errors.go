package repo

import "errors"

// Ошибки хранилища регистраций.
var (
	// ErrNotFound — workflow ещё не регистрировался.
	ErrNotFound = errors.New("workflow not registered")

	// ErrNoDSN — строка подключения не задана.
	ErrNoDSN = errors.New("database url is empty (set DAGFACTORY_DB_URL)")
)
