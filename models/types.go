package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringArray хранит список строк (теги) в виде JSON-колонки.
// Работает одинаково в PostgreSQL и в SQLite для тестов.
type StringArray []string

// Value сериализует массив для записи в БД
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации тегов: %w", err)
	}
	return string(data), nil
}

// Scan читает массив из БД
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("неподдерживаемый тип колонки для StringArray: %T", value)
	}

	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}

// Contains проверяет наличие значения в массиве
func (a StringArray) Contains(value string) bool {
	for _, item := range a {
		if item == value {
			return true
		}
	}
	return false
}

// JSONMap хранит произвольные пользовательские поля (key-value) в виде JSON-колонки
type JSONMap map[string]interface{}

// Value сериализует карту для записи в БД
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации пользовательских полей: %w", err)
	}
	return string(data), nil
}

// Scan читает карту из БД
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("неподдерживаемый тип колонки для JSONMap: %T", value)
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}
