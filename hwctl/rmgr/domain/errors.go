package domain

import "errors"

// Taxonomia de erros. Use errors.Is para comparar; as camadas de cima
// embrulham com fmt.Errorf("...: %w") para dar contexto.
var (
	// ErrConfig: parâmetros de init inválidos (capacidade zero, acima do máximo do hardware).
	ErrConfig = errors.New("invalid resource configuration")

	// ErrResourceExhausted: nenhuma vaga livre. Recuperável (retry/backpressure no chamador).
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidHandle: release de slot que não está em uso (double release ou slot desconhecido).
	ErrInvalidHandle = errors.New("invalid resource handle")

	// ErrResourceLeak: uninit com slots ainda em uso. Diagnóstico; o teardown segue mesmo assim.
	ErrResourceLeak = errors.New("resource leak at teardown")

	ErrPipeInactive      = errors.New("pipe inactive")
	ErrPipeFull          = errors.New("pipe flip queue full")
	ErrInvalidTransition = errors.New("invalid flip state transition")

	ErrUnknownPipe   = errors.New("unknown pipe")
	ErrUnknownFlip   = errors.New("unknown flip")
	ErrUnknownBuffer = errors.New("unknown buffer")
	ErrUnknownStream = errors.New("unknown stream")

	// ErrFlipThrottled: enqueue acima da taxa permitida pelo swap interval do pipe.
	ErrFlipThrottled = errors.New("flip throttled by swap interval")

	// ErrBufferBusy: buffer ainda referenciado por flips em voo.
	ErrBufferBusy = errors.New("buffer busy")
)

// IsBackpressure indica erros que o chamador deve tratar adiando a operação.
func IsBackpressure(err error) bool {
	return errors.Is(err, ErrResourceExhausted) ||
		errors.Is(err, ErrPipeFull) ||
		errors.Is(err, ErrPipeInactive) ||
		errors.Is(err, ErrFlipThrottled)
}
