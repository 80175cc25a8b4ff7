package handler

import (
	"errors"
	"log"
	"net/http"

	"mercuriogate/internal/service/s3"
)

// Pinger проверяет живость соединения с базой.
type Pinger interface {
	Ping() error
}

// Health проверяет базу и хранилище. Для бакета достаточно ответа на
// Stat по заведомо отсутствующему ключу: NotFound означает, что бакет
// отвечает.
func Health(db Pinger, store s3.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			log.Printf("[Health] База данных недоступна: %v", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}

		if store != nil {
			if _, err := store.Stat(r.Context(), ".healthz"); err != nil && !errors.Is(err, s3.ErrObjectNotFound) {
				log.Printf("[Health] Хранилище недоступно: %v", err)
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
