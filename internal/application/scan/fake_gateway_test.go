package scan_test

import (
	"context"
	"sync"

	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
)

// fakeGateway servicio de inventario en memoria. Los hooks permiten bloquear o fallar llamadas concretas.
type fakeGateway struct {
	mu        sync.Mutex
	pending   []entity.PendingRecord
	scanned   []entity.ScannedRecord
	judge     bool
	scans     []string
	confirmed [][]entity.ScanItem
	cancelled [][]entity.ScanItem
	orders    int

	onScan         func(ctx context.Context, barcode string) (string, error)
	onFetchScanned func(ctx context.Context) ([]entity.ScannedRecord, error)
	onJudge        func(ctx context.Context) (bool, error)
}

func (f *fakeGateway) setScanned(recs ...entity.ScannedRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned = append([]entity.ScannedRecord(nil), recs...)
}

func (f *fakeGateway) FetchPending(ctx context.Context, orderID string) ([]entity.PendingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.PendingRecord(nil), f.pending...), nil
}

func (f *fakeGateway) FetchScanned(ctx context.Context, orderID string) ([]entity.ScannedRecord, error) {
	if f.onFetchScanned != nil {
		return f.onFetchScanned(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.ScannedRecord(nil), f.scanned...), nil
}

func (f *fakeGateway) ScanByBarcode(ctx context.Context, orderID, barcode string) (string, error) {
	f.mu.Lock()
	f.scans = append(f.scans, barcode)
	f.mu.Unlock()
	if f.onScan != nil {
		return f.onScan(ctx, barcode)
	}
	return "escaneo registrado", nil
}

func (f *fakeGateway) ConfirmScans(ctx context.Context, orderID string, items []entity.ScanItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, items)
	for _, it := range items {
		for i := range f.scanned {
			if f.scanned[i].Barcode == it.Barcode && f.scanned[i].DetailID == it.DetailID {
				f.scanned[i].Confirmed = true
			}
		}
	}
	return "registros confirmados", nil
}

func (f *fakeGateway) CancelScans(ctx context.Context, orderID string, items []entity.ScanItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, items)
	kept := f.scanned[:0]
	for _, rec := range f.scanned {
		drop := false
		for _, it := range items {
			if rec.Barcode == it.Barcode && rec.DetailID == it.DetailID {
				drop = true
			}
		}
		if !drop {
			kept = append(kept, rec)
		}
	}
	f.scanned = kept
	return "registros anulados", nil
}

func (f *fakeGateway) JudgeAllScanned(ctx context.Context, orderID string) (bool, error) {
	if f.onJudge != nil {
		return f.onJudge(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.judge, nil
}

func (f *fakeGateway) ConfirmOrder(ctx context.Context, orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders++
	return "orden confirmada", nil
}

func (f *fakeGateway) UpdateLocation(ctx context.Context, in entity.LocationUpdate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.scanned {
		if f.scanned[i].DetailID == in.DetailID {
			f.scanned[i].Location = in.Location
			f.scanned[i].WarehouseCode = in.WarehouseCode
		}
	}
	return "ubicación actualizada", nil
}

func (f *fakeGateway) UpdateQuantity(ctx context.Context, in entity.QuantityUpdate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.scanned {
		if f.scanned[i].DetailID == in.DetailID && f.scanned[i].Barcode == in.Barcode {
			f.scanned[i].Quantity = in.Quantity
		}
	}
	return "cantidad actualizada", nil
}

func (f *fakeGateway) serverScanned() []entity.ScannedRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.ScannedRecord(nil), f.scanned...)
}

func (f *fakeGateway) scanCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scans...)
}

func (f *fakeGateway) confirmOrderCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders
}

// viewRecorder guarda todas las vistas notificadas.
type viewRecorder struct {
	mu    sync.Mutex
	views []scan.OrderView
}

func (r *viewRecorder) OnStateChanged(v scan.OrderView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) all() []scan.OrderView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scan.OrderView(nil), r.views...)
}

func (r *viewRecorder) last() scan.OrderView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return scan.OrderView{}
	}
	return r.views[len(r.views)-1]
}
