package scan_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/internal/domain"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

const orderID = "O-100"

func newOrchestrator(t *testing.T, gw *fakeGateway, rec *viewRecorder, opts scan.Options) *scan.Orchestrator {
	t.Helper()
	order := entity.OrderContext{OrderID: orderID, Flow: entity.FlowInbound, Status: "OPEN"}
	o := scan.NewOrchestrator(context.Background(), order, gw, rec, logger.Nop(), opts)
	t.Cleanup(o.Close)
	return o
}

func scanEvent(code string) entity.ScanEvent {
	return entity.ScanEvent{ID: "ev-" + code, Code: code, SourceType: entity.SourceManual, Timestamp: time.Now()}
}

func barcodes(recs []entity.ScannedRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Barcode)
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Escaneo
// ──────────────────────────────────────────────────────────────────────────────

func TestHandleScan_PlaceholderOptimistaLuegoCorregido(t *testing.T) {
	gw := &fakeGateway{}
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.onScan = func(ctx context.Context, barcode string) (string, error) {
		close(entered)
		<-release
		return "escaneo registrado", nil
	}
	rec := &viewRecorder{}
	o := newOrchestrator(t, gw, rec, scan.Options{})

	done := make(chan error, 1)
	go func() { done <- o.HandleScan(context.Background(), scanEvent("A1")) }()
	<-entered

	view := o.View()
	require.Len(t, view.Scanned, 1)
	assert.Equal(t, entity.ScannedRecord{Barcode: "A1", OrderID: orderID, Quantity: 0, Selected: true}, view.Scanned[0])
	assert.Equal(t, scan.StateRemoteConfirming, view.State)

	gw.setScanned(entity.ScannedRecord{Barcode: "A1", DetailID: "D1", OrderID: orderID, MaterialName: "Perno", Quantity: 5})
	close(release)
	require.NoError(t, <-done)

	view = o.View()
	require.Len(t, view.Scanned, 1)
	got := view.Scanned[0]
	assert.Equal(t, "D1", got.DetailID)
	assert.Equal(t, 5, got.Quantity)
	assert.Equal(t, "Perno", got.MaterialName)
	assert.True(t, got.Selected, "la selección sobrevive a la reconciliación")
	assert.Equal(t, scan.StateIdle, view.State)
	assert.Equal(t, "escaneo registrado", view.Message)
}

func TestHandleScan_ModoDetalleAdoptaPlaceholder(t *testing.T) {
	gw := &fakeGateway{}
	gw.onScan = func(ctx context.Context, barcode string) (string, error) {
		gw.setScanned(entity.ScannedRecord{Barcode: barcode, DetailID: "D7", Quantity: 1})
		return "ok", nil
	}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{Identity: entity.IdentityDetailBarcode})

	require.NoError(t, o.HandleScan(context.Background(), scanEvent("A1")))

	view := o.View()
	require.Len(t, view.Scanned, 1)
	assert.Equal(t, "D7", view.Scanned[0].DetailID)
	assert.True(t, view.Scanned[0].Selected)
}

func TestHandleScan_CodigoVacio(t *testing.T) {
	gw := &fakeGateway{}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})

	err := o.HandleScan(context.Background(), scanEvent("  "))

	assert.ErrorIs(t, err, domain.ErrEmptyScan)
	assert.Empty(t, gw.scanCalls())
}

func TestHandleScan_FalloLiberaLockYMuestraMensaje(t *testing.T) {
	gw := &fakeGateway{}
	gw.onScan = func(ctx context.Context, barcode string) (string, error) {
		if barcode == "X9" {
			return "", &domain.BusinessError{Op: "scanByBarcode", Message: "El código X9 no pertenece a la orden"}
		}
		gw.setScanned(entity.ScannedRecord{Barcode: barcode, DetailID: "D1", Quantity: 1})
		return "ok", nil
	}
	rec := &viewRecorder{}
	o := newOrchestrator(t, gw, rec, scan.Options{})

	err := o.HandleScan(context.Background(), scanEvent("X9"))
	var biz *domain.BusinessError
	require.ErrorAs(t, err, &biz)

	view := o.View()
	assert.Equal(t, scan.StateIdle, view.State)
	assert.Equal(t, "El código X9 no pertenece a la orden", view.Message)
	assert.Equal(t, scan.LevelError, view.MessageLevel)
	assert.Equal(t, []string{"X9"}, barcodes(view.Scanned), "sin rollback el placeholder queda hasta la próxima reconciliación")

	var sawFailed bool
	for _, v := range rec.all() {
		if v.State == scan.StateFailed {
			sawFailed = true
		}
	}
	assert.True(t, sawFailed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, o.HandleScan(ctx, scanEvent("A1")), "el lock se liberó tras el fallo")
	assert.Equal(t, []string{"A1"}, barcodes(o.View().Scanned), "la reconciliación elimina el placeholder rechazado")
}

func TestHandleScan_RollbackQuitaPlaceholder(t *testing.T) {
	gw := &fakeGateway{}
	gw.onScan = func(ctx context.Context, barcode string) (string, error) {
		return "", &domain.NetworkError{Op: "scanByBarcode", Attempts: 1, Err: errors.New("connection reset")}
	}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{RollbackOnFailure: true})

	err := o.HandleScan(context.Background(), scanEvent("A1"))

	require.Error(t, err)
	assert.Empty(t, o.View().Scanned)
}

func TestHandleScan_RafagaConcurrenteSerializada(t *testing.T) {
	gw := &fakeGateway{}
	var active, maxActive int32
	gw.onScan = func(ctx context.Context, barcode string) (string, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return "ok", nil
	}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, o.HandleScan(context.Background(), scanEvent(fmt.Sprintf("C%d", i))))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive), "nunca hay más de una secuencia en vuelo")
	assert.Len(t, gw.scanCalls(), 10)
}

func TestHandleScan_OrdenCerradaRechaza(t *testing.T) {
	gw := &fakeGateway{}
	order := entity.OrderContext{OrderID: orderID, Flow: entity.FlowOutbound, Status: "closed"}
	o := scan.NewOrchestrator(context.Background(), order, gw, nil, logger.Nop(), scan.Options{})
	defer o.Close()

	err := o.HandleScan(context.Background(), scanEvent("A1"))

	assert.ErrorIs(t, err, domain.ErrOrderClosed)
	assert.Empty(t, gw.scanCalls())
	assert.Equal(t, scan.StateClosed, o.View().State)
}

func TestRefresh_OrdenCanceladaNoConsultaNiNotifica(t *testing.T) {
	gw := &fakeGateway{}
	fetches := int32(0)
	gw.onFetchScanned = func(ctx context.Context) ([]entity.ScannedRecord, error) {
		atomic.AddInt32(&fetches, 1)
		return nil, nil
	}
	rec := &viewRecorder{}
	o := newOrchestrator(t, gw, rec, scan.Options{})
	o.Close()

	assert.ErrorIs(t, o.Refresh(context.Background()), domain.ErrOrderClosed)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fetches))
	assert.Empty(t, rec.all())
}

func TestRefresh_CierreDuranteLecturaNoMuestraError(t *testing.T) {
	gw := &fakeGateway{}
	entered := make(chan struct{})
	gw.onFetchScanned = func(ctx context.Context) ([]entity.ScannedRecord, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	rec := &viewRecorder{}
	o := newOrchestrator(t, gw, rec, scan.Options{})

	done := make(chan error, 1)
	go func() { done <- o.Refresh(context.Background()) }()
	<-entered
	o.Close()

	assert.ErrorIs(t, <-done, domain.ErrOrderClosed)
	for _, v := range rec.all() {
		assert.Empty(t, v.Message, "la cancelación no se muestra al operario")
	}
}

func TestClose_CancelaSecuenciaEnVuelo(t *testing.T) {
	gw := &fakeGateway{}
	entered := make(chan struct{})
	gw.onScan = func(ctx context.Context, barcode string) (string, error) {
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	}
	fetches := int32(0)
	gw.onFetchScanned = func(ctx context.Context) ([]entity.ScannedRecord, error) {
		atomic.AddInt32(&fetches, 1)
		return nil, nil
	}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})

	done := make(chan error, 1)
	go func() { done <- o.HandleScan(context.Background(), scanEvent("A1")) }()
	<-entered
	o.Close()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fetches), "no se emite refresco tras la cancelación")
	assert.ErrorIs(t, o.HandleScan(context.Background(), scanEvent("B2")), domain.ErrOrderClosed)
}

// ──────────────────────────────────────────────────────────────────────────────
// Refresco y versiones
// ──────────────────────────────────────────────────────────────────────────────

type fetchCall struct {
	reply chan []entity.ScannedRecord
}

func TestRefresh_RespuestaObsoletaSeDescarta(t *testing.T) {
	gw := &fakeGateway{}
	calls := make(chan fetchCall)
	gw.onFetchScanned = func(ctx context.Context) ([]entity.ScannedRecord, error) {
		c := fetchCall{reply: make(chan []entity.ScannedRecord)}
		calls <- c
		select {
		case recs := <-c.reply:
			return recs, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})

	errA := make(chan error, 1)
	go func() { errA <- o.Refresh(context.Background()) }()
	callA := <-calls

	errB := make(chan error, 1)
	go func() { errB <- o.Refresh(context.Background()) }()
	callB := <-calls

	callB.reply <- []entity.ScannedRecord{{Barcode: "B2", DetailID: "D2", Quantity: 2}}
	require.NoError(t, <-errB)
	assert.Equal(t, []string{"B2"}, barcodes(o.View().Scanned))
	assert.Equal(t, uint64(2), o.View().Version)

	callA.reply <- []entity.ScannedRecord{{Barcode: "A1", DetailID: "D1", Quantity: 1}}
	require.NoError(t, <-errA, "el resultado obsoleto se descarta en silencio")
	assert.Equal(t, []string{"B2"}, barcodes(o.View().Scanned))
	assert.Empty(t, o.View().Message)
}

func TestRefresh_EscaneoDuranteRefrescoInvalidaElAnterior(t *testing.T) {
	gw := &fakeGateway{}
	gate := make(chan struct{})
	blocked := make(chan struct{})
	var n int32
	gw.onFetchScanned = func(ctx context.Context) ([]entity.ScannedRecord, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			close(blocked)
			<-gate
			return []entity.ScannedRecord{{Barcode: "OLD", DetailID: "D0"}}, nil
		}
		return gw.serverScanned(), nil
	}
	gw.onScan = func(ctx context.Context, barcode string) (string, error) {
		gw.setScanned(entity.ScannedRecord{Barcode: barcode, DetailID: "D1", Quantity: 1})
		return "ok", nil
	}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})

	refreshed := make(chan error, 1)
	go func() { refreshed <- o.Refresh(context.Background()) }()
	<-blocked

	require.NoError(t, o.HandleScan(context.Background(), scanEvent("B1")))
	close(gate)
	require.NoError(t, <-refreshed)

	assert.Equal(t, []string{"B1"}, barcodes(o.View().Scanned))
}

func TestRefresh_ErrorDeRedMuestraMensaje(t *testing.T) {
	gw := &fakeGateway{}
	gw.onFetchScanned = func(ctx context.Context) ([]entity.ScannedRecord, error) {
		return nil, &domain.NetworkError{Op: "fetchScanned", Attempts: 4, Err: errors.New("timeout")}
	}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})

	err := o.Refresh(context.Background())

	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.NotEmpty(t, o.View().Message)
	assert.Equal(t, scan.LevelError, o.View().MessageLevel)
}

// ──────────────────────────────────────────────────────────────────────────────
// Comandos sobre la selección
// ──────────────────────────────────────────────────────────────────────────────

func TestCancelScans_QuitaSoloElRegistroAnulado(t *testing.T) {
	gw := &fakeGateway{}
	gw.setScanned(
		entity.ScannedRecord{Barcode: "X0", DetailID: "D0", Quantity: 1, Location: "R-01"},
		entity.ScannedRecord{Barcode: "A1", DetailID: "D1", Quantity: 2},
		entity.ScannedRecord{Barcode: "Z9", DetailID: "D9", Quantity: 3},
	)
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})
	require.NoError(t, o.Refresh(context.Background()))
	before := o.View().Scanned

	require.True(t, o.SetSelected(entity.ScanKey{Barcode: "A1"}, true))
	msg, err := o.CancelScans(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "registros anulados", msg)
	require.Len(t, gw.cancelled, 1)
	assert.Equal(t, []entity.ScanItem{{Barcode: "A1", DetailID: "D1"}}, gw.cancelled[0])

	after := o.View().Scanned
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[2], after[1])
}

func TestPassScans_MarcaConfirmados(t *testing.T) {
	gw := &fakeGateway{}
	gw.setScanned(
		entity.ScannedRecord{Barcode: "A1", DetailID: "D1", Quantity: 2},
		entity.ScannedRecord{Barcode: "B2", DetailID: "D2", Quantity: 1},
	)
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})
	require.NoError(t, o.Refresh(context.Background()))
	o.SelectAll(true)

	_, err := o.PassScans(context.Background())

	require.NoError(t, err)
	require.Len(t, gw.confirmed, 1)
	assert.Len(t, gw.confirmed[0], 2)
	for _, r := range o.View().Scanned {
		assert.True(t, r.Confirmed)
		assert.True(t, r.Selected)
	}
}

func TestPassScans_SinSeleccion(t *testing.T) {
	gw := &fakeGateway{}
	gw.setScanned(entity.ScannedRecord{Barcode: "A1", DetailID: "D1"})
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})
	require.NoError(t, o.Refresh(context.Background()))

	_, err := o.PassScans(context.Background())

	assert.ErrorIs(t, err, domain.ErrNothingSelected)
	assert.Empty(t, gw.confirmed)
}

// ──────────────────────────────────────────────────────────────────────────────
// Confirmación de la orden
// ──────────────────────────────────────────────────────────────────────────────

func TestConfirmOrder_PendientesBloquean(t *testing.T) {
	gw := &fakeGateway{judge: false}
	gw.setScanned(entity.ScannedRecord{Barcode: "A1", DetailID: "D1", Quantity: 1})
	rec := &viewRecorder{}
	o := newOrchestrator(t, gw, rec, scan.Options{})
	require.NoError(t, o.Refresh(context.Background()))
	before := o.View().Scanned

	_, err := o.ConfirmOrder(context.Background())

	assert.ErrorIs(t, err, domain.ErrNotAllScanned)
	assert.Equal(t, 0, gw.confirmOrderCalls())
	view := o.View()
	assert.Equal(t, scan.LevelBlocking, view.MessageLevel)
	assert.False(t, view.Closed)
	assert.Equal(t, before, view.Scanned)
}

func TestConfirmOrder_CierraLaOrden(t *testing.T) {
	gw := &fakeGateway{judge: true}
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})

	msg, err := o.ConfirmOrder(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "orden confirmada", msg)
	assert.Equal(t, 1, gw.confirmOrderCalls())
	view := o.View()
	assert.True(t, view.Closed)
	assert.Equal(t, entity.OrderStatusClosed, view.Status)
	assert.Equal(t, scan.StateClosed, view.State)
	assert.ErrorIs(t, o.HandleScan(context.Background(), scanEvent("A1")), domain.ErrOrderClosed)
}

// ──────────────────────────────────────────────────────────────────────────────
// Edición de detalles
// ──────────────────────────────────────────────────────────────────────────────

func TestUpdateQuantity_ValidaYRefresca(t *testing.T) {
	gw := &fakeGateway{}
	gw.setScanned(entity.ScannedRecord{Barcode: "A1", DetailID: "D1", Quantity: 1})
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})
	require.NoError(t, o.Refresh(context.Background()))

	_, err := o.UpdateQuantity(context.Background(), entity.QuantityUpdate{Barcode: "A1", DetailID: "D1", Quantity: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = o.UpdateQuantity(context.Background(), entity.QuantityUpdate{Barcode: "A1", DetailID: "D1", Quantity: 9})
	require.NoError(t, err)
	assert.Equal(t, 9, o.View().Scanned[0].Quantity)
}

func TestUpdateLocation_Refresca(t *testing.T) {
	gw := &fakeGateway{}
	gw.setScanned(entity.ScannedRecord{Barcode: "A1", DetailID: "D1", Quantity: 1})
	o := newOrchestrator(t, gw, &viewRecorder{}, scan.Options{})
	require.NoError(t, o.Refresh(context.Background()))

	_, err := o.UpdateLocation(context.Background(), entity.LocationUpdate{DetailID: "D1", WarehouseCode: "WH2", Location: "R-09"})

	require.NoError(t, err)
	got := o.View().Scanned[0]
	assert.Equal(t, "R-09", got.Location)
	assert.Equal(t, "WH2", got.WarehouseCode)
}

func TestSetSelected_NotificaSinPeticiones(t *testing.T) {
	gw := &fakeGateway{}
	gw.setScanned(entity.ScannedRecord{Barcode: "A1", DetailID: "D1"})
	rec := &viewRecorder{}
	o := newOrchestrator(t, gw, rec, scan.Options{})
	require.NoError(t, o.Refresh(context.Background()))
	n := len(rec.all())

	assert.True(t, o.SetSelected(entity.ScanKey{Barcode: "A1"}, true))
	assert.False(t, o.SetSelected(entity.ScanKey{Barcode: "NOPE"}, true))

	assert.Greater(t, len(rec.all()), n)
	assert.True(t, rec.last().Scanned[0].Selected)
	assert.Empty(t, gw.scanCalls())
}
