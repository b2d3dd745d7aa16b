package parallel

import "sync"

// phaseRecorder is a PhaseCallback that records everything the driver
// forwards. Only the driver goroutine calls it, but tests read it from the
// main goroutine afterwards, hence the mutex.
type phaseRecorder struct {
	mu sync.Mutex

	itemsProcessed int64
	bytesProcessed int64
	itemsTotal     int64
	bytesTotal     int64

	statuses []string
	logs     []string
	errors   []ErrorInfo

	// responses are consumed in order by ReportError; when exhausted,
	// Ignore is answered.
	responses []Response

	// optional failure injections
	statusErr error
	logErr    error
}

func (r *phaseRecorder) UpdateDataProcessed(itemsDelta, bytesDelta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemsProcessed += itemsDelta
	r.bytesProcessed += bytesDelta
}

func (r *phaseRecorder) UpdateDataTotal(itemsDelta, bytesDelta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemsTotal += itemsDelta
	r.bytesTotal += bytesDelta
}

func (r *phaseRecorder) UpdateStatus(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, msg)
	return r.statusErr
}

func (r *phaseRecorder) LogInfo(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
	return r.logErr
}

func (r *phaseRecorder) ReportError(info ErrorInfo) (Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, info)
	if len(r.responses) == 0 {
		return Ignore, nil
	}
	resp := r.responses[0]
	r.responses = r.responses[1:]
	return resp, nil
}

func (r *phaseRecorder) processed() (int64, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsProcessed, r.bytesProcessed
}

func (r *phaseRecorder) totals() (int64, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsTotal, r.bytesTotal
}

func (r *phaseRecorder) statusLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func (r *phaseRecorder) logLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

func (r *phaseRecorder) errorPrompts() []ErrorInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorInfo(nil), r.errors...)
}

// statRecorder is a StatusReporter for reporter-level tests: it tracks the
// running processed/total sums a driver would eventually observe.
type statRecorder struct {
	itemsProcessed int64
	bytesProcessed int64
	itemsTotal     int64
	bytesTotal     int64
	statuses       []string
}

func (r *statRecorder) UpdateDataProcessed(itemsDelta, bytesDelta int64) {
	r.itemsProcessed += itemsDelta
	r.bytesProcessed += bytesDelta
}

func (r *statRecorder) UpdateDataTotal(itemsDelta, bytesDelta int64) {
	r.itemsTotal += itemsDelta
	r.bytesTotal += bytesDelta
}

func (r *statRecorder) UpdateStatus(msg string) error {
	r.statuses = append(r.statuses, msg)
	return nil
}
