package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// StockDirection - направление изменения остатков
type StockDirection string

const (
	// DirectionAdd - заказ размещён или восстановлен из cancelled: остатки уменьшаются
	DirectionAdd StockDirection = "add"
	// DirectionSubtract - заказ отменён: остатки возвращаются
	DirectionSubtract StockDirection = "subtract"
)

var (
	ErrSizeNotFound      = errors.New("size not found")
	ErrSizeRequired      = errors.New("size required")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductSize - остаток конкретного размера
type ProductSize struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

// Product - товар каталога. Если есть размеры, Stock всегда равен их сумме.
type Product struct {
	ID      int64           `json:"id"`
	Code    string          `json:"productCode"`
	Name    string          `json:"name"`
	Stock   int             `json:"stock"`
	Sizes   []ProductSize   `json:"sizes,omitempty"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// HasSizes сообщает, ведётся ли учёт по размерам
func (p *Product) HasSizes() bool {
	return len(p.Sizes) > 0
}

// usesSize - применяется ли к позиции учёт по размеру
func (p *Product) usesSize(size string) bool {
	return size != "" && p.HasSizes()
}

func (p *Product) sizeIndex(name string) int {
	for i := range p.Sizes {
		if p.Sizes[i].Name == name {
			return i
		}
	}
	return -1
}

// Available возвращает доступный остаток для позиции (размера или товара целиком)
func (p *Product) Available(size string) (int, error) {
	if !p.usesSize(size) {
		return p.Stock, nil
	}
	idx := p.sizeIndex(size)
	if idx < 0 {
		return 0, ErrSizeNotFound
	}
	return p.Sizes[idx].Stock, nil
}

// RecomputeStock пересчитывает агрегированный остаток из размеров
func (p *Product) RecomputeStock() {
	if !p.HasSizes() {
		return
	}
	total := 0
	for _, s := range p.Sizes {
		total += s.Stock
	}
	p.Stock = total
}

// ApplyLine применяет одну позицию заказа к товару в памяти.
// add уменьшает остаток и увеличивает счётчики, subtract делает обратное.
// Для товара с размерами позиция без размера отклоняется с ErrSizeRequired.
func (p *Product) ApplyLine(item LineItem, dir StockDirection) error {
	qty := item.Quantity
	revenue := item.LineTotal()

	// у товара с размерами остаток ведётся только по размерам, Stock пересчитывается из них
	idx := -1
	if p.HasSizes() {
		if item.SelectedSize == "" {
			return ErrSizeRequired
		}
		idx = p.sizeIndex(item.SelectedSize)
		if idx < 0 {
			return ErrSizeNotFound
		}
	}

	switch dir {
	case DirectionAdd:
		available := p.Stock
		if idx >= 0 {
			available = p.Sizes[idx].Stock
		}
		if available < qty {
			return ErrInsufficientStock
		}
		if idx >= 0 {
			p.Sizes[idx].Stock -= qty
		} else {
			p.Stock -= qty
		}
		p.Orders += qty
		p.Revenue = p.Revenue.Add(revenue)
	case DirectionSubtract:
		if idx >= 0 {
			p.Sizes[idx].Stock += qty
		} else {
			p.Stock += qty
		}
		p.Orders -= qty
		p.Revenue = p.Revenue.Sub(revenue)
	default:
		return errors.New("unknown stock direction")
	}

	if idx >= 0 {
		p.RecomputeStock()
	}
	return nil
}
