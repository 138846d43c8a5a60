package webhook

import (
	"bytes"
	"context"
	"io"
	"time"

	fastshot "github.com/opus-domini/fast-shot"

	"github.com/vladislavdragonenkov/fiadopay/internal/domain"
)

// Заголовки запроса доставки.
const (
	HeaderEventType = "X-Event-Type"
	HeaderSignature = "X-Signature"
)

const (
	defaultSendTimeout = 5 * time.Second
	maxDrainedBody     = 64 << 10
)

// Request: одна попытка отправки события.
type Request struct {
	URL       string
	EventType string
	Signature string
	Body      []byte
}

// Sender выполняет HTTP-доставку. nil-ошибка означает ответ 2xx, любая другая
// ситуация возвращается как *domain.TransportError.
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// HTTPSender отправляет события через fast-shot с таймаутом на запрос.
type HTTPSender struct {
	timeout time.Duration
}

// NewHTTPSender создаёт отправителя. Неположительный timeout заменяется на 5s.
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &HTTPSender{timeout: timeout}
}

type sendResult struct {
	status int
	err    error
}

// Send выполняет POST и считает успехом только ответ 2xx.
// Отмена ctx прерывает ожидание; сам запрос ограничен таймаутом клиента.
func (s *HTTPSender) Send(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return &domain.TransportError{URL: req.URL, Err: err}
	}

	done := make(chan sendResult, 1)
	go func() {
		done <- s.post(req)
	}()

	select {
	case <-ctx.Done():
		return &domain.TransportError{URL: req.URL, Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return &domain.TransportError{URL: req.URL, Err: res.err}
		}
		if res.status < 200 || res.status > 299 {
			return &domain.TransportError{URL: req.URL, StatusCode: res.status}
		}
		return nil
	}
}

func (s *HTTPSender) post(req Request) sendResult {
	res, err := fastshot.NewClient(req.URL).
		Config().SetTimeout(s.timeout).
		Header().Add("Content-Type", "application/json").
		Header().Add(HeaderEventType, req.EventType).
		Header().Add(HeaderSignature, req.Signature).
		Build().POST("").
		Body().AsReader(bytes.NewReader(req.Body)).
		Send()
	if err != nil {
		return sendResult{err: err}
	}

	if raw := res.RawResponse; raw != nil && raw.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(raw.Body, maxDrainedBody))
		_ = raw.Body.Close()
	}
	return sendResult{status: res.StatusCode()}
}

var _ Sender = (*HTTPSender)(nil)
