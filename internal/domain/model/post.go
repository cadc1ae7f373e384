// Пакет model — доменные сущности epflws: записи хранилища метаданных,
// лаборатории, сотрудники, записи каталога LDAP и состояние синхронизации.
package model

import "time"

// Post — запись хранилища метаданных.
// Хранится в таблицах posts + post_meta.
type Post struct {
	// ID — UUID записи, назначается хранилищем при создании
	ID string
	// PostType — тип записи (epfl-lab, epfl-person)
	PostType string
	// Title — заголовок (для лаборатории — английское описание)
	Title string
	// Meta — метаданные: ключ → значение
	Meta map[string]string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// MetaValue возвращает значение метаданных или пустую строку.
func (p *Post) MetaValue(key string) string {
	if p.Meta == nil {
		return ""
	}
	return p.Meta[key]
}

// MetaPair — пара ключ/значение метаданных.
// Порядок пар в срезе задаёт порядок записи.
type MetaPair struct {
	Key   string
	Value string
}

// MetaKeys возвращает ключи пар в исходном порядке.
func MetaKeys(pairs []MetaPair) []string {
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, p.Key)
	}
	return keys
}
