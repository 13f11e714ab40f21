package scenario

import (
	"errors"
	"fmt"
)

// ErrorKind - категория неудачной генерации сценария.
type ErrorKind string

const (
	// KindTransport - ошибка сети, авторизации, квоты или пустой ответ бэкенда.
	KindTransport ErrorKind = "transport"
	// KindSchema - ответ не разбирается в форму сценария.
	KindSchema ErrorKind = "schema"
	// KindSemantic - форма верна, но вариантов не два или правильный не один.
	KindSemantic ErrorKind = "semantic"
	// KindBusy - запрос не отправлен, превышен лимит одновременных генераций.
	KindBusy ErrorKind = "busy"
	// KindInterrupted - генерация прервана перезапуском сервера.
	KindInterrupted ErrorKind = "interrupted"
)

// ErrGeneration - общий маркер для errors.Is.
var ErrGeneration = errors.New("scenario generation failed")

// GenerationError - единая ошибка провайдера сценариев.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func NewGenerationError(kind ErrorKind, err error) *GenerationError {
	return &GenerationError{Kind: kind, Err: err}
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrGeneration, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", ErrGeneration, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// KindOf возвращает категорию ошибки. Любая ошибка вне GenerationError считается транспортной.
func KindOf(err error) ErrorKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindTransport
}

var userMessages = map[ErrorKind]string{
	KindTransport:   "تعذّر الحصول على قصة جديدة الآن. حاول مرة أخرى.",
	KindSchema:      "وصلتنا قصة غير مكتملة. حاول مرة أخرى.",
	KindSemantic:    "وصلتنا قصة غير مكتملة. حاول مرة أخرى.",
	KindBusy:        "الخدمة مشغولة الآن. انتظر قليلًا ثم حاول مرة أخرى.",
	KindInterrupted: "توقفت اللعبة قبل أن تكتمل القصة. ابدأ من جديد.",
}

const defaultUserMessage = "حدث خطأ ما. حاول مرة أخرى."

// UserMessage возвращает фиксированное сообщение для игрока. Текст исходной ошибки наружу не попадает.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := userMessages[KindOf(err)]; ok {
		return msg
	}
	return defaultUserMessage
}
