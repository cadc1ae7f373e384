// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrLabNotFound — подразделение отсутствует в каталоге или в хранилище.
	ErrLabNotFound = errors.New("лаборатория не найдена")
	// ErrLabUnicity — uniqueIdentifier лаборатории соответствует нескольким записям каталога.
	ErrLabUnicity = errors.New("uniqueIdentifier лаборатории неоднозначен в каталоге")
	// ErrMalformedEntry — запись каталога без uniqueIdentifier (ошибка вызывающего кода).
	ErrMalformedEntry = errors.New("запись каталога без uniqueIdentifier")
	// ErrPersonNotFound — сотрудник не найден.
	ErrPersonNotFound = errors.New("сотрудник не найден")
	// ErrDirectoryUnavailable — каталог LDAP недоступен.
	ErrDirectoryUnavailable = errors.New("каталог LDAP недоступен")
	// ErrFeedUnavailable — Memento API недоступен или вернул некорректный ответ.
	ErrFeedUnavailable = errors.New("Memento API недоступен")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)
