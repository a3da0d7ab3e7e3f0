package reconcile

import "github.com/jhoicas/inventario-scan/internal/domain/entity"

// MergeResult resumen de una reconciliación.
type MergeResult struct {
	Inserted  int
	Updated   int
	Removed   int
	Unchanged int
}

// Changed indica si la reconciliación modificó la colección.
func (r MergeResult) Changed() bool {
	return r.Inserted+r.Updated+r.Removed > 0
}

// ScannedCollection colección viva de registros escaneados. No es segura para uso concurrente:
// el orquestador la protege con su propio lock.
type ScannedCollection struct {
	mode  entity.IdentityMode
	items []entity.ScannedRecord
}

// NewScannedCollection crea una colección vacía con el modo de identidad indicado.
func NewScannedCollection(mode entity.IdentityMode) *ScannedCollection {
	return &ScannedCollection{mode: mode}
}

// Mode devuelve el modo de identidad.
func (c *ScannedCollection) Mode() entity.IdentityMode { return c.mode }

// Len número de registros.
func (c *ScannedCollection) Len() int { return len(c.items) }

// Snapshot copia inmutable del contenido en orden de pantalla.
func (c *ScannedCollection) Snapshot() []entity.ScannedRecord {
	out := make([]entity.ScannedRecord, len(c.items))
	copy(out, c.items)
	return out
}

// Find busca un registro por identidad.
func (c *ScannedCollection) Find(key entity.ScanKey) (entity.ScannedRecord, bool) {
	if i := c.indexOf(key); i >= 0 {
		return c.items[i], true
	}
	return entity.ScannedRecord{}, false
}

// Reconcile fusiona en sitio la lista autoritativa del servidor.
//
// Los registros existentes se actualizan campo a campo sin tocar Selected, los nuevos se agregan
// al final y los que el servidor ya no devuelve se eliminan. Nunca se vacía y reconstruye la colección.
func (c *ScannedCollection) Reconcile(incoming []entity.ScannedRecord) MergeResult {
	var res MergeResult

	index := make(map[entity.ScanKey]int, len(c.items))
	placeholders := make(map[string][]int)
	for i, rec := range c.items {
		index[rec.Key(c.mode)] = i
		if c.mode == entity.IdentityDetailBarcode && rec.IsPlaceholder() {
			placeholders[rec.Barcode] = append(placeholders[rec.Barcode], i)
		}
	}

	seen := make([]bool, len(c.items), len(c.items)+len(incoming))
	updatedAt := make(map[int]bool)

	for _, in := range incoming {
		key := in.Key(c.mode)
		i, ok := index[key]
		if !ok && c.mode == entity.IdentityDetailBarcode && !in.IsPlaceholder() {
			i, ok = adoptPlaceholder(placeholders, in.Barcode, seen)
			if ok {
				delete(index, c.items[i].Key(c.mode))
				index[key] = i
			}
		}
		if !ok {
			c.items = append(c.items, in)
			seen = append(seen, true)
			index[key] = len(c.items) - 1
			res.Inserted++
			continue
		}
		if mergeFields(&c.items[i], in) {
			updatedAt[i] = true
		}
		seen[i] = true
	}

	// los agregados en esta pasada no cuentan como actualizados
	original := len(seen) - res.Inserted
	for i := range updatedAt {
		if i < original {
			res.Updated++
		}
	}

	j := 0
	for i := range c.items {
		if !seen[i] {
			res.Removed++
			continue
		}
		if i < original && !updatedAt[i] {
			res.Unchanged++
		}
		c.items[j] = c.items[i]
		j++
	}
	for k := j; k < len(c.items); k++ {
		c.items[k] = entity.ScannedRecord{}
	}
	c.items = c.items[:j]
	return res
}

func adoptPlaceholder(placeholders map[string][]int, barcode string, seen []bool) (int, bool) {
	for n, i := range placeholders[barcode] {
		if !seen[i] {
			placeholders[barcode] = append(placeholders[barcode][:n], placeholders[barcode][n+1:]...)
			return i, true
		}
	}
	return 0, false
}

// mergeFields copia sobre dst solo los campos autoritativos que difieren. Selected no se toca.
func mergeFields(dst *entity.ScannedRecord, src entity.ScannedRecord) bool {
	changed := false
	set := func(d *string, s string) {
		if *d != s {
			*d = s
			changed = true
		}
	}
	set(&dst.DetailID, src.DetailID)
	set(&dst.OrderID, src.OrderID)
	set(&dst.MaterialName, src.MaterialName)
	set(&dst.Spec, src.Spec)
	set(&dst.Location, src.Location)
	set(&dst.WarehouseCode, src.WarehouseCode)
	if dst.Quantity != src.Quantity {
		dst.Quantity = src.Quantity
		changed = true
	}
	if dst.Confirmed != src.Confirmed {
		dst.Confirmed = src.Confirmed
		changed = true
	}
	return changed
}

// Touch inserta un placeholder optimista para el barcode o reutiliza el registro existente.
// En ambos casos queda seleccionado. Devuelve la identidad y si se insertó uno nuevo.
func (c *ScannedCollection) Touch(orderID, barcode string) (entity.ScanKey, bool) {
	for i := range c.items {
		if c.items[i].Barcode == barcode {
			c.items[i].Selected = true
			return c.items[i].Key(c.mode), false
		}
	}
	rec := entity.ScannedRecord{Barcode: barcode, OrderID: orderID, Selected: true}
	c.items = append(c.items, rec)
	return rec.Key(c.mode), true
}

// RemovePlaceholder elimina el registro si sigue sin confirmar por el servidor.
func (c *ScannedCollection) RemovePlaceholder(key entity.ScanKey) bool {
	i := c.indexOf(key)
	if i < 0 || !c.items[i].IsPlaceholder() {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

// SetSelected cambia la selección de un registro.
func (c *ScannedCollection) SetSelected(key entity.ScanKey, selected bool) bool {
	i := c.indexOf(key)
	if i < 0 {
		return false
	}
	c.items[i].Selected = selected
	return true
}

// SelectAll marca o desmarca todos los registros.
func (c *ScannedCollection) SelectAll(selected bool) {
	for i := range c.items {
		c.items[i].Selected = selected
	}
}

// SelectedItems pares (barcode, detailId) de los registros seleccionados, en orden de pantalla.
func (c *ScannedCollection) SelectedItems() []entity.ScanItem {
	var out []entity.ScanItem
	for _, rec := range c.items {
		if rec.Selected {
			out = append(out, entity.ScanItem{Barcode: rec.Barcode, DetailID: rec.DetailID})
		}
	}
	return out
}

func (c *ScannedCollection) indexOf(key entity.ScanKey) int {
	for i := range c.items {
		if c.items[i].Key(c.mode) == key {
			return i
		}
	}
	return -1
}
