package services

import "errors"

// Типизированные ошибки доменного слоя. Обработчики API сопоставляют их
// с HTTP-статусами через errors.Is: не найдено -> 404, дубликат email,
// валидация и недопустимое состояние -> 400, остальное -> 500.
var (
	// ErrNotFound — сущность отсутствует или принадлежит другой организации
	ErrNotFound = errors.New("запись не найдена")

	// ErrDuplicateEmail — нарушение уникальности email внутри организации
	ErrDuplicateEmail = errors.New("лид с таким email уже существует")

	// ErrInvalidState — операция недопустима в текущем состоянии сущности
	ErrInvalidState = errors.New("недопустимое состояние")

	// ErrValidation — некорректные входные данные
	ErrValidation = errors.New("некорректные данные")
)
