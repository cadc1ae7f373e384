package model

import "time"

// SyncState — состояние синхронизации (одна строка в БД, id = 1).
type SyncState struct {
	// LastLabSyncAt — время последней полной синхронизации лабораторий
	LastLabSyncAt *time.Time
}

// LabSyncResult — результат синхронизации всех лабораторий по суффиксу DN.
type LabSyncResult struct {
	// DNSuffix — суффикс DN, определяющий множество лабораторий
	DNSuffix string
	// Total — лабораторий найдено в хранилище
	Total int
	// Synced — успешно синхронизировано
	Synced int
	// NotFound — отсутствуют в каталоге
	NotFound int
	// Unicity — неоднозначный uniqueIdentifier в каталоге
	Unicity int
	// Failed — прочие ошибки
	Failed int
	// StartedAt — время начала синхронизации
	StartedAt time.Time
	// CompletedAt — время завершения синхронизации
	CompletedAt time.Time
}
