package scanner

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

// maxLine lectura más larga aceptada del lector en modo teclado.
const maxLine = 4 * 1024

// KeyboardSource lector en modo teclado (keyboard wedge): cada lectura termina en \n, \r o \r\n.
type KeyboardSource struct {
	r   io.Reader
	log *logger.Logger
}

// NewKeyboardSource crea el adaptador sobre r (normalmente os.Stdin o un puerto serie abierto como archivo).
func NewKeyboardSource(r io.Reader, log *logger.Logger) *KeyboardSource {
	if log == nil {
		log = logger.Nop()
	}
	return &KeyboardSource{r: r, log: log.Component("keyboard_source")}
}

// Name implementa scan.Source.
func (k *KeyboardSource) Name() string { return entity.SourceKeyboard }

// Run implementa scan.Source. La lectura bloqueante corre en su propia goroutine; Run vuelve al cancelar ctx
// o al llegar EOF.
func (k *KeyboardSource) Run(ctx context.Context, emit scan.EmitFunc) error {
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(k.r)
		sc.Buffer(make([]byte, 0, 256), maxLine)
		sc.Split(ScanTerminated)
		for sc.Scan() {
			if ctx.Err() != nil {
				break
			}
			emit(sc.Text(), entity.SourceKeyboard)
		}
		errc <- sc.Err()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if err != nil {
			k.log.Warn().Err(err).Msg("lectura del teclado interrumpida")
		}
		return err
	}
}

// ScanTerminated bufio.SplitFunc que corta en \n, \r o \r\n. Un \r al final del buffer se entrega sin
// esperar más datos; si luego llega el \n sale una línea vacía que la superficie descarta al normalizar.
func ScanTerminated(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
