package service

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// Окно, в течение которого повторный идентичный запрос отклоняется.
	dedupTTL = 30 * time.Second
	// Минимальный интервал между фоновыми зачистками.
	dedupSweepInterval = 5 * time.Minute
	// Записи старше этого возраста выметаются безусловно.
	dedupStaleAge = 10 * time.Minute
)

// Deduplicator отслеживает выполняющиеся скачивания и отклоняет
// идентичные конкурентные запросы. Состояние живёт в памяти процесса:
// рестарт сбрасывает окно, что допустимо для защиты от даблкликов.
type Deduplicator struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	lastSweep time.Time

	now func() time.Time
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Fingerprint вычисляет отпечаток запроса: пользователь, операция,
// HTTP-метод, путь и отсортированные query-параметры. Порядок параметров
// в URL на отпечаток не влияет.
func Fingerprint(userID, operation string, r *http.Request) string {
	params := make([]string, 0, len(r.URL.Query()))
	for key, values := range r.URL.Query() {
		for _, v := range values {
			params = append(params, key+"="+v)
		}
	}
	sort.Strings(params)

	var sb strings.Builder
	sb.WriteString(userID)
	sb.WriteByte('|')
	sb.WriteString(operation)
	sb.WriteByte('|')
	sb.WriteString(r.Method)
	sb.WriteByte('|')
	sb.WriteString(r.URL.Path)
	sb.WriteByte('|')
	sb.WriteString(strings.Join(params, "&"))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Begin пытается занять отпечаток. false — идентичный запрос уже
// выполняется либо завершился меньше dedupTTL назад.
func (d *Deduplicator) Begin(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.maybeSweep(now)

	if started, ok := d.entries[fingerprint]; ok {
		if now.Sub(started) < dedupTTL {
			return false
		}
	}

	d.entries[fingerprint] = now
	return true
}

// End освобождает отпечаток после завершения скачивания.
func (d *Deduplicator) End(fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, fingerprint)
}

// maybeSweep выметает протухшие записи, оставшиеся после паник или
// потерянных End. Вызывается под мьютексом.
func (d *Deduplicator) maybeSweep(now time.Time) {
	if now.Sub(d.lastSweep) < dedupSweepInterval {
		return
	}
	d.lastSweep = now

	for fp, started := range d.entries {
		if now.Sub(started) > dedupStaleAge {
			delete(d.entries, fp)
		}
	}
}
