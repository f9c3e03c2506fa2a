package models

import "time"

const (
	// DefaultPollInterval период опроса статуса синхронизации
	DefaultPollInterval = 1500 * time.Millisecond

	// DefaultPollMaxAttempts максимальное количество опросов за один запуск
	DefaultPollMaxAttempts = 200

	// DefaultPollTimeout жесткий предел ожидания завершения синхронизации
	DefaultPollTimeout = 5 * time.Minute

	// DefaultStartupDelay пауза перед первым опросом, чтобы запись задачи успела появиться
	DefaultStartupDelay = 500 * time.Millisecond

	// DefaultHistoryEvery каждый N-й опрос обновляет историю
	DefaultHistoryEvery = 10

	// DefaultFailureThreshold допустимое количество неудачных опросов подряд
	DefaultFailureThreshold = 5

	// DefaultReloadDelay задержка перед перезагрузкой данных после успешной синхронизации
	DefaultReloadDelay = 2 * time.Second

	// DefaultHistoryLimit размер страницы истории синхронизаций
	DefaultHistoryLimit = 5

	// DefaultLogPageSize размер страницы логов задачи
	DefaultLogPageSize = 100

	// MaxLogPageSize верхняя граница размера страницы логов
	MaxLogPageSize = 500

	// TokenCookieMaxAge время жизни cookie с токеном
	TokenCookieMaxAge = 7 * 24 * time.Hour

	// DefaultTokenKey ключ токена в хранилище ключ/значение
	DefaultTokenKey = "token"

	// DefaultTokenCookieName имя cookie с токеном
	DefaultTokenCookieName = "token"
)
